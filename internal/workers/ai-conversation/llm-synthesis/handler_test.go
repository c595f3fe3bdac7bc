// internal/workers/ai-conversation/llm-synthesis/handler_test.go
package llmsynthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finlit-workers/internal/common/genai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

type fakeCompleter struct {
	response string
	err      error
	requests []genai.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req genai.CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		err          error
		wantErr      error
		wantAnswer   string
		wantAnalysis bool
	}{
		{
			name:       "free-form answer",
			response:   "  Adi sudah rajin menabung minggu ini.  ",
			wantAnswer: "Adi sudah rajin menabung minggu ini.",
		},
		{
			name: "structured analysis",
			response: "```json\n" + `{"summary":"Performa Adi meningkat.","insights":["Skor Menabung 85"],` +
				`"recommendations":["Ajak Adi mengisi celengan"]}` + "\n```",
			wantAnswer:   "Performa Adi meningkat.",
			wantAnalysis: true,
		},
		{
			name:       "analysis without summary stays free-form",
			response:   `{"insights":["x"]}`,
			wantAnswer: `{"insights":["x"]}`,
		},
		{
			name:    "empty completion",
			wantErr: ErrLLMSynthesisFailed,
		},
		{
			name:    "completion error",
			err:     errors.New("upstream 500"),
			wantErr: ErrLLMSynthesisFailed,
		},
		{
			name:    "completion timeout",
			err:     fmt.Errorf("chat completion: %w", context.DeadlineExceeded),
			wantErr: ErrLLMTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{response: tt.response, err: tt.err}
			h := NewHandler(LoadConfig(), completer, NewTestLogger(t))

			out, err := h.Execute(context.Background(), &Input{Prompt: "Bagaimana performa Adi?"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAnswer, out.Answer)
			assert.Equal(t, tt.wantAnalysis, out.Analysis != nil)
			assert.False(t, out.Fallback)

			require.Len(t, completer.requests, 1)
			assert.Equal(t, "Bagaimana performa Adi?", completer.requests[0].Prompt)
			require.NotNil(t, completer.requests[0].Temperature)
			assert.InDelta(t, 0.7, *completer.requests[0].Temperature, 1e-6)
		})
	}
}

func TestExecute_EmptyPrompt(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeCompleter{response: "x"}, NewTestLogger(t))
	_, err := h.Execute(context.Background(), &Input{Prompt: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAnswer_SafeMessage(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeCompleter{err: errors.New("api key invalid: sk-123")}, NewTestLogger(t))

	out, fallback := h.Answer(context.Background(), "halo")
	assert.True(t, fallback)
	assert.True(t, out.Fallback)
	assert.Equal(t, SafeMessage, out.Answer)
	assert.NotContains(t, out.Answer, "sk-123")
}

func TestParseAnalysis(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeCompleter{}, NewTestLogger(t))

	analysis, ok := h.ParseAnalysis(`{"summary":"ok","insights":[],"recommendations":["a","b"]}`)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, analysis.Recommendations)

	_, ok = h.ParseAnalysis("bukan json")
	assert.False(t, ok)

	_, ok = h.ParseAnalysis(`{"summary": 3}`)
	assert.False(t, ok)
}

func TestExecute_OpenAICompatibleServer(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"summary\":\"Bagus!\"}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	client := genai.NewClient(genai.Config{
		BaseURL:   server.URL,
		APIKey:    "test",
		ChatModel: "gpt-4o-mini",
		Timeout:   5 * time.Second,
	}, server.Client())
	h := NewHandler(LoadConfig(), client, NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Prompt: "Ringkas performa"})
	require.NoError(t, err)
	assert.Equal(t, "Bagus!", out.Answer)
	require.NotNil(t, out.Analysis)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
}
