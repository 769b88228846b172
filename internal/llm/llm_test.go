package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestParseLLMFlag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantProv string
		wantMod  string
		wantErr  bool
	}{
		{"empty defaults to ollama", "", "ollama", DefaultModel, false},
		{"ollama qwen", "ollama/qwen2.5:1.5b", "ollama", "qwen2.5:1.5b", false},
		{"openai", "openai/gpt-4o-mini", "openai", "gpt-4o-mini", false},
		{"deepseek", "deepseek/deepseek-chat", "deepseek", "deepseek-chat", false},
		{"openrouter model", "openrouter/qwen/qwen-2.5-7b-instruct", "openrouter", "qwen/qwen-2.5-7b-instruct", false},
		{"case insensitive provider", "Ollama/qwen2.5:7b", "ollama", "qwen2.5:7b", false},
		{"unknown provider", "anthropic/claude", "", "", true},
		{"no slash", "qwen2.5", "", "", true},
		{"empty model", "ollama/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseLLMFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Provider != tt.wantProv {
				t.Errorf("provider: got %q, want %q", cfg.Provider, tt.wantProv)
			}
			if cfg.Model != tt.wantMod {
				t.Errorf("model: got %q, want %q", cfg.Model, tt.wantMod)
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(Config{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}

	t.Setenv("OPENROUTER_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openrouter"})
	if err == nil {
		t.Fatal("expected error for openrouter without API key")
	}

	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openai"})
	if err == nil {
		t.Fatal("expected error for openai without API key or base URL")
	}
}

func TestNewProviderNames(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Provider: "ollama"}, "ollama/" + DefaultModel},
		{Config{Provider: "ollama", Model: "qwen2.5:7b"}, "ollama/qwen2.5:7b"},
		{Config{Provider: "openai", Model: "qwen2.5", BaseURL: "http://localhost:11434/v1"}, "openai/qwen2.5"},
		{Config{Provider: "deepseek", APIKey: "k", Model: "deepseek-chat"}, "deepseek/deepseek-chat"},
		{Config{Provider: "openrouter", APIKey: "k"}, "openrouter/openai/gpt-4o-mini"},
	}
	for _, tt := range tests {
		p, err := NewProvider(tt.cfg)
		if err != nil {
			t.Fatalf("NewProvider(%+v): %v", tt.cfg, err)
		}
		if p.Name() != tt.want {
			t.Errorf("Name() = %q, want %q", p.Name(), tt.want)
		}
	}
}

func chatResponseJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	return string(b)
}

func TestOpenAIProviderComplete(t *testing.T) {
	var gotModel string
	var gotMessages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		gotModel = req.Model
		gotMessages = len(req.Messages)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponseJSON("Thinking...\n[{\"head\":\"青花瓷\"}]\n多余的解释")))
	}))
	defer server.Close()

	p := newOpenAIProvider("openai", "test-key", "qwen2.5", server.URL+"/v1", nil)

	result, err := p.Complete(context.Background(), "抽取", CompletionOpts{System: "你是信息抽取系统", FirstLine: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "qwen2.5" {
		t.Errorf("model: got %q", gotModel)
	}
	if gotMessages != 2 {
		t.Errorf("expected system+user messages, got %d", gotMessages)
	}
	if result != `[{"head":"青花瓷"}]` {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestOpenAIProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	p := newOpenAIProvider("openai", "test-key", "m", server.URL, nil)
	if _, err := p.Complete(context.Background(), "x", CompletionOpts{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRouterProviderComplete(t *testing.T) {
	var gotPath, gotAuth, gotReferer, gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")

		var req struct {
			Model          string `json:"model"`
			MaxTokens      int    `json:"max_tokens"`
			ResponseFormat *struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "qwen/qwen-2.5-7b-instruct" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if req.MaxTokens != 200 {
			t.Errorf("max_tokens: got %d", req.MaxTokens)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json response format")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponseJSON(`[{"head":"青花瓷","relation":"作词","tail":"方文山"}]`)))
	}))
	defer server.Close()

	p, err := NewProvider(Config{
		Provider: "openrouter",
		Model:    "qwen/qwen-2.5-7b-instruct",
		APIKey:   "test-key",
		BaseURL:  server.URL + "/api/v1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*openaiProvider); !ok {
		t.Fatalf("openrouter should use the go-openai client, got %T", p)
	}

	result, err := p.Complete(context.Background(), "test", CompletionOpts{
		MaxTokens: 200,
		Format:    "json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `[{"head":"青花瓷","relation":"作词","tail":"方文山"}]` {
		t.Errorf("unexpected result: %q", result)
	}
	if gotPath != "/api/v1/chat/completions" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("bad auth header: %q", gotAuth)
	}
	if gotReferer != openrouterHeaders["HTTP-Referer"] || gotTitle != "hallucheck" {
		t.Errorf("attribution headers missing: referer=%q title=%q", gotReferer, gotTitle)
	}
}

func TestOpenRouterProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	p, err := NewProvider(Config{Provider: "openrouter", Model: "test", APIKey: "test", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Complete(context.Background(), "test", CompletionOpts{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error should carry the API message: %v", err)
	}
}

func TestOpenAIProviderSendsNoExtraHeaders(t *testing.T) {
	var gotTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("X-Title")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatResponseJSON("周杰伦")))
	}))
	defer server.Close()

	p, err := NewProvider(Config{Provider: "openai", Model: "m", APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Complete(context.Background(), "x", CompletionOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTitle != "" {
		t.Errorf("openai provider should not send attribution headers, got X-Title %q", gotTitle)
	}
}

type stubProvider struct {
	text  string
	err   error
	delay time.Duration
}

func (s *stubProvider) Name() string { return "stub/test" }

func (s *stubProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		timeout  time.Duration
		wantKind GenerationKind
		wantText string
	}{
		{"ok", &stubProvider{text: "[]"}, time.Second, GenerationOK, "[]"},
		{"failure", &stubProvider{err: errors.New("exit status 1")}, time.Second, GenerationFailed, ""},
		{"timeout", &stubProvider{text: "late", delay: 2 * time.Second}, 20 * time.Millisecond, GenerationTimeout, ""},
		{"nil provider", nil, time.Second, GenerationFailed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := Generate(context.Background(), tt.provider, "prompt", tt.timeout, CompletionOpts{})
			if gen.Kind != tt.wantKind {
				t.Fatalf("kind: got %s, want %s (err=%v)", gen.Kind, tt.wantKind, gen.Err)
			}
			if gen.Text != tt.wantText {
				t.Errorf("text: got %q, want %q", gen.Text, tt.wantText)
			}
			if tt.wantKind != GenerationOK && gen.Err == nil {
				t.Error("expected an error on non-ok outcome")
			}
		})
	}
}

func TestOllamaProviderRunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub requires a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "ollama")
	script := "#!/bin/sh\necho 'Thinking...'\necho \"model=$2\"\necho 'second line'\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	p, err := NewProvider(Config{Provider: "ollama", Model: "qwen2.5:1.5b", Binary: bin})
	if err != nil {
		t.Fatal(err)
	}

	out, err := p.Complete(context.Background(), "hi", CompletionOpts{FirstLine: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "model=qwen2.5:1.5b" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestOllamaProviderTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub requires a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "ollama")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexec sleep 5\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	p, _ := NewProvider(Config{Provider: "ollama", Binary: bin})
	gen := Generate(context.Background(), p, "hi", 50*time.Millisecond, CompletionOpts{})
	if gen.Kind != GenerationTimeout {
		t.Fatalf("expected timeout, got %s (%v)", gen.Kind, gen.Err)
	}
}

func TestOllamaProviderTimeoutWithOrphanedChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub requires a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "ollama")
	// The background sleep inherits stdout and outlives the killed parent.
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nsleep 4 &\nexec sleep 4\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	p := &ollamaProvider{binary: bin, model: DefaultModel, waitDelay: 100 * time.Millisecond}
	start := time.Now()
	gen := Generate(context.Background(), p, "hi", 50*time.Millisecond, CompletionOpts{})
	elapsed := time.Since(start)

	if gen.Kind != GenerationTimeout {
		t.Fatalf("expected timeout, got %s (%v)", gen.Kind, gen.Err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timed-out call blocked for %s waiting on the child's pipe", elapsed)
	}
}

func TestOllamaProviderMissingBinary(t *testing.T) {
	p, _ := NewProvider(Config{Provider: "ollama", Binary: filepath.Join(t.TempDir(), "missing")})
	gen := Generate(context.Background(), p, "hi", time.Second, CompletionOpts{})
	if gen.Kind != GenerationFailed {
		t.Fatalf("expected failure, got %s", gen.Kind)
	}
}

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		firstLine bool
		want      string
	}{
		{"plain", "  hello  ", false, "hello"},
		{"thinking prefix", "Thinking...\n[1]", true, "[1]"},
		{"done thinking tail", "Thinking...\nreasoning...done thinking.\n\n[1, 2]\ntrailing", true, "reasoning"},
		{"multi line kept", "a\nb", false, "a\nb"},
		{"first line", "a\nb", true, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanOutput(tt.raw, tt.firstLine); got != tt.want {
				t.Errorf("CleanOutput(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCleanAnswer(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", UnknownAnswer},
		{"Thinking...\n...done thinking.", UnknownAnswer},
		{"答案：**方文山**", "方文山"},
		{"Answer: 周杰伦", "周杰伦"},
		{"《青花瓷》的作词人是方文山。\n他也写了很多歌。", "《青花瓷》的作词人是方文山。 他也写了很多歌。"},
		{"***", UnknownAnswer},
	}
	for _, tt := range tests {
		if got := CleanAnswer(tt.raw); got != tt.want {
			t.Errorf("CleanAnswer(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestAnswerPrompt(t *testing.T) {
	if got := AnswerPrompt("七里香是谁唱的"); got != "问题：七里香是谁唱的？\n回答：" {
		t.Errorf("unexpected prompt: %q", got)
	}
	if got := AnswerPrompt("七里香是谁唱的？"); got != "问题：七里香是谁唱的？\n回答：" {
		t.Errorf("unexpected prompt: %q", got)
	}
}

func TestAnswerDegradesToUnknown(t *testing.T) {
	ans, gen := Answer(context.Background(), &stubProvider{err: errors.New("down")}, "七里香是谁唱的", time.Second)
	if ans != UnknownAnswer {
		t.Errorf("expected %q, got %q", UnknownAnswer, ans)
	}
	if gen.OK() {
		t.Error("expected failed generation")
	}

	ans, _ = Answer(context.Background(), &stubProvider{text: "回答：周杰伦"}, "七里香是谁唱的", time.Second)
	if ans != "周杰伦" {
		t.Errorf("unexpected answer %q", ans)
	}
}
