package api

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/rollout/internal/backend"
	"github.com/samcharles93/rollout/internal/backend/fake"
	"github.com/samcharles93/rollout/internal/inference"
	"github.com/samcharles93/rollout/internal/lm"
	"github.com/samcharles93/rollout/internal/tokenizer"
)

// answerOK makes any prompt continue with "ok" and then EOS.
func answerOK(h []int) int {
	switch h[len(h)-1] {
	case tokenizer.ByteToken('k'):
		return tokenizer.ByteEOS
	case tokenizer.ByteToken('o'):
		return tokenizer.ByteToken('k')
	}
	return tokenizer.ByteToken('o')
}

func newTestEcho(t *testing.T, embedding bool) (*echo.Echo, *fake.Backend) {
	t.Helper()
	raw := fake.New(backend.Properties{
		Name:          "fake",
		ContextSize:   64,
		VocabSize:     tokenizer.ByteVocab,
		EmbeddingSize: 3,
		BOS:           tokenizer.ByteBOS,
		EOS:           tokenizer.ByteEOS,
		Newline:       tokenizer.ByteToken('\n'),
	}, fake.Script(tokenizer.ByteVocab, answerOK))
	raw.Embedding = embedding

	p := lm.DefaultParams()
	p.BatchSize = 16
	p.EmbeddingMode = embedding
	m, err := lm.New(p, &backend.Loaded{Backend: raw, Tokenizer: tokenizer.NewByteTokenizer()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defaults := inference.DefaultGenDefaults()
	defaults.Sampling.Temperature = 0
	engine := inference.NewEngine(m, defaults, nil)
	t.Cleanup(func() { _ = engine.Close() })

	e := echo.New()
	NewServer(NewInferenceService("toy-test", engine, m), nil).Register(e)
	return e, raw
}

func testEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e, _ := newTestEcho(t, false)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthAndServerHeader(t *testing.T) {
	t.Parallel()
	rec := doJSON(t, testEcho(t), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got := rec.Header().Get("Server"); !strings.HasPrefix(got, "rollout/") {
		t.Fatalf("Server header = %q", got)
	}
}

func TestCompletion(t *testing.T) {
	t.Parallel()
	rec := doJSON(t, testEcho(t), http.MethodPost, "/v1/completions", `{"prompt":"hi","max_tokens":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[CompletionResponse](t, rec)
	if !strings.HasPrefix(resp.ID, "cmpl-") || resp.Model != "toy-test" || resp.Object != "text_completion" {
		t.Fatalf("envelope = %+v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Text != "ok" || *resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("choices = %+v", resp.Choices)
	}
	if resp.Usage == nil || resp.Usage.PromptTokens != 3 || resp.Usage.CompletionTokens != 2 || resp.Usage.TotalTokens != 5 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestCompletionLengthLimit(t *testing.T) {
	t.Parallel()
	rec := doJSON(t, testEcho(t), http.MethodPost, "/v1/completions", `{"prompt":"hi","max_tokens":1}`)
	resp := decode[CompletionResponse](t, rec)
	if resp.Choices[0].Text != "o" || *resp.Choices[0].FinishReason != "length" {
		t.Fatalf("choices = %+v", resp.Choices)
	}
}

func TestCompletionErrors(t *testing.T) {
	t.Parallel()
	e, raw := newTestEcho(t, false)
	cases := []struct {
		name string
		body string
		code string
	}{
		{"malformed", `{"prompt":`, ""},
		{"unknown strategy", `{"prompt":"x","mirostat":"V9"}`, ""},
		{"out of range", `{"prompt":"x","top_p":2}`, "configuration"},
		{"bad penalty", `{"prompt":"x","repeat_penalty":0}`, "configuration"},
		{"out of range stream", `{"prompt":"x","top_p":2,"stream":true}`, "configuration"},
		{"negative budget", `{"prompt":"x","max_tokens":-1}`, ""},
	}
	for _, tc := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/completions", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d body=%s", tc.name, rec.Code, rec.Body.String())
		}
		if tc.code != "" && !strings.Contains(rec.Body.String(), `"code":"`+tc.code+`"`) {
			t.Fatalf("%s: body %s lacks code %s", tc.name, rec.Body.String(), tc.code)
		}
	}
	if len(raw.Calls) != 0 {
		t.Fatalf("rejected requests reached the backend %d times", len(raw.Calls))
	}
}

func TestCompletionStream(t *testing.T) {
	t.Parallel()
	rec := doJSON(t, testEcho(t), http.MethodPost, "/v1/completions", `{"prompt":"hi","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	var texts []string
	var finish string
	events := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	if events[len(events)-1] != "data: [DONE]" {
		t.Fatalf("stream not terminated: %q", events[len(events)-1])
	}
	for _, ev := range events[:len(events)-1] {
		var chunk CompletionResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(ev, "data: ")), &chunk); err != nil {
			t.Fatalf("event %q: %v", ev, err)
		}
		if chunk.Choices[0].FinishReason != nil {
			finish = *chunk.Choices[0].FinishReason
			continue
		}
		texts = append(texts, chunk.Choices[0].Text)
	}
	if !slices.Equal(texts, []string{"o", "k"}) || finish != "stop" {
		t.Fatalf("texts %q finish %q", texts, finish)
	}
}

func TestTokenizeDetokenize(t *testing.T) {
	t.Parallel()
	e := testEcho(t)

	tok := decode[TokenizeResponse](t, doJSON(t, e, http.MethodPost, "/v1/tokenize", `{"text":"ab"}`))
	want := []int{tokenizer.ByteBOS, tokenizer.ByteToken('a'), tokenizer.ByteToken('b')}
	if !slices.Equal(tok.Tokens, want) || tok.Count != 3 {
		t.Fatalf("tokenize = %+v", tok)
	}
	tok = decode[TokenizeResponse](t, doJSON(t, e, http.MethodPost, "/v1/tokenize", `{"text":"ab","add_bos":false}`))
	if !slices.Equal(tok.Tokens, want[1:]) {
		t.Fatalf("tokenize without BOS = %v", tok.Tokens)
	}

	det := decode[DetokenizeResponse](t, doJSON(t, e, http.MethodPost, "/v1/detokenize", `{"tokens":[100,101]}`))
	if det.Text != "ab" || !det.Complete {
		t.Fatalf("detokenize = %+v", det)
	}
	det = decode[DetokenizeResponse](t, doJSON(t, e, http.MethodPost, "/v1/detokenize", `{"tokens":[198]}`))
	if det.Complete {
		t.Fatal("lone lead byte reported complete")
	}
}

func TestEmbeddings(t *testing.T) {
	t.Parallel()
	rec := doJSON(t, testEcho(t), http.MethodPost, "/v1/embeddings", `{"input":"x"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "unsupported_operation") {
		t.Fatalf("non-embedding model: %d %s", rec.Code, rec.Body.String())
	}

	e, _ := newTestEcho(t, true)
	resp := decode[EmbeddingResponse](t, doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":["a","bc"]}`))
	if len(resp.Data) != 2 || len(resp.Data[0].Embedding) != 3 {
		t.Fatalf("embeddings = %+v", resp)
	}
	if resp.Data[0].Embedding[0] != 2 || resp.Data[1].Embedding[0] != 3 {
		t.Fatalf("embedding lengths = %v, %v", resp.Data[0].Embedding, resp.Data[1].Embedding)
	}
	if rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":[1]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-string input: %d", rec.Code)
	}
}

func TestModelsAndMetrics(t *testing.T) {
	t.Parallel()
	e := testEcho(t)
	models := decode[struct {
		Data []ModelInfo `json:"data"`
	}](t, doJSON(t, e, http.MethodGet, "/v1/models", ""))
	if len(models.Data) != 1 || models.Data[0].ID != "toy-test" || models.Data[0].ContextSize != 64 {
		t.Fatalf("models = %+v", models)
	}

	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rollout_evaluated_tokens_total") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
