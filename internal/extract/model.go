package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hurttlocker/hallucheck/internal/kb"
	"github.com/hurttlocker/hallucheck/internal/llm"
)

// extractionPromptTemplate asks the generator to do NER and relation
// extraction in one pass. The single worked example fixes the output shape.
const extractionPromptTemplate = `你是一个专业的信息抽取系统。请从以下文本中：
1. 识别【歌曲】和【人物】实体；
2. 判断它们之间的关系，关系类型只能是：歌手、作词、作曲；
3. 输出严格为 JSON 列表，格式：[{"head":"歌曲","relation":"关系","tail":"人物"}]

示例：
文本：《青花瓷》由周杰伦演唱，方文山作词。
输出：
[{"head": "青花瓷", "relation": "歌手", "tail": "周杰伦"}, {"head": "青花瓷", "relation": "作词", "tail": "方文山"}]

文本：%s
输出：
`

// ExtractionPrompt returns the model-assisted extraction prompt for answer.
func ExtractionPrompt(answer string) string {
	return fmt.Sprintf(extractionPromptTemplate, answer)
}

// jsonArrayRE grabs everything from the first '[' to the last ']', so
// commentary around the array is tolerated.
var jsonArrayRE = regexp.MustCompile(`(?s)\[.*\]`)

var errNoArray = errors.New("no JSON array in model output")

// candidateRecord is one unvalidated object from the model's JSON array.
type candidateRecord struct {
	Head     string `json:"head"`
	Relation string `json:"relation"`
	Tail     string `json:"tail"`
}

// parseOutcome is the result of parsing untrusted model output: either the
// decoded records or the reason parsing failed. Field validation only
// happens on a successful outcome.
type parseOutcome struct {
	records []candidateRecord
	err     error
}

func (o parseOutcome) ok() bool { return o.err == nil }

// parseModelOutput decodes the bracketed array in raw. Malformed JSON is a
// failure; no repair is attempted.
func parseModelOutput(raw string) parseOutcome {
	m := jsonArrayRE.FindString(raw)
	if m == "" {
		return parseOutcome{err: errNoArray}
	}
	var records []candidateRecord
	if err := json.Unmarshal([]byte(m), &records); err != nil {
		return parseOutcome{err: fmt.Errorf("decoding model JSON: %w", err)}
	}
	return parseOutcome{records: records}
}

// ModelAssisted is the first extraction stage: the generator proposes
// triples and each candidate is validated against the dictionary.
type ModelAssisted struct {
	dict     *kb.Dictionary
	provider llm.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewModelAssisted builds the model-assisted stage. A nil provider makes the
// stage a no-op.
func NewModelAssisted(dict *kb.Dictionary, provider llm.Provider, timeout time.Duration, logger *slog.Logger) *ModelAssisted {
	if timeout <= 0 {
		timeout = llm.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelAssisted{dict: dict, provider: provider, timeout: timeout, logger: logger}
}

func (m *ModelAssisted) Name() string { return StageModel }

// Attempt asks the generator for triples. Generation failure, a timeout, or
// unparseable output all yield an empty result.
func (m *ModelAssisted) Attempt(ctx context.Context, req Request) []Triple {
	if m.provider == nil {
		return nil
	}

	gen := llm.Generate(ctx, m.provider, ExtractionPrompt(req.Answer), m.timeout, llm.CompletionOpts{})
	if !gen.OK() {
		m.logger.Warn("model extraction unavailable", "provider", m.provider.Name(), "outcome", gen.Kind.String(), "error", gen.Err)
		return nil
	}

	outcome := parseModelOutput(gen.Text)
	if !outcome.ok() {
		m.logger.Debug("model extraction output rejected", "error", outcome.err)
		return nil
	}
	return m.accept(outcome.records, req)
}

// accept promotes validated records to triples.
func (m *ModelAssisted) accept(records []candidateRecord, req Request) []Triple {
	var triples []Triple
	for _, rec := range records {
		head := NormalizeEntity(rec.Head)
		tail := NormalizeEntity(rec.Tail)
		if req.Mode == Ungrounded {
			tail = CleanTail(tail)
			if head == "" {
				head = req.Head
			}
		}

		rel, ok := ParseRelation(rec.Relation)
		if !ok {
			continue
		}

		switch req.Mode {
		case Ungrounded:
			if head == "" || !ValidateTail(tail, m.dict, Ungrounded) {
				continue
			}
		default:
			if !m.dict.IsHead(head) || !m.dict.IsPerson(tail) {
				continue
			}
		}
		triples = append(triples, Triple{Head: head, Relation: rel, Tail: tail})
	}
	return dedupeTriples(triples)
}
