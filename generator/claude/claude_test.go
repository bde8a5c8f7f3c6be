package claude_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/generator/claude"
)

func passages() []core.RetrievalResult {
	return []core.RetrievalResult{{
		Document: core.Document{ID: "x:0", Content: "The sky is blue.", Metadata: core.Metadata{Source: "/docs/colors.txt"}},
		Score:    0.8,
		Rank:     1,
	}}
}

func messageServer(t *testing.T, status int, content []map[string]any, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			require.NoError(t, json.Unmarshal(body, seen))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"content":       content,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	var req map[string]any
	srv := messageServer(t, http.StatusOK, []map[string]any{
		{"type": "text", "text": "The sky is blue [1]."},
	}, &req)

	g, err := claude.New(claude.Config{APIKey: "test-key", Model: "claude-test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "claude:claude-test", g.Name())

	answer, err := g.Generate(context.Background(), "What color is the sky?", passages())
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue [1].", answer)

	assert.Equal(t, "claude-test", req["model"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 1)
	raw, _ := json.Marshal(msgs[0])
	assert.Contains(t, string(raw), "What color is the sky?")
	assert.Contains(t, string(raw), "/docs/colors.txt")
}

func TestGenerate_APIError(t *testing.T) {
	srv := messageServer(t, http.StatusInternalServerError, nil, nil)
	g, err := claude.New(claude.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", passages())
	assert.Error(t, err)
}

func TestGenerate_EmptyReply(t *testing.T) {
	srv := messageServer(t, http.StatusOK, []map[string]any{}, nil)
	g, err := claude.New(claude.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", passages())
	assert.Error(t, err)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := claude.New(claude.Config{})
	assert.Error(t, err)
}
