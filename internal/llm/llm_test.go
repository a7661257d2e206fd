package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestToGenaiSchema(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "object",
		"properties": {
			"intent": {"type": "string", "enum": ["greeting", "unknown"]},
			"tags": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["intent"],
		"additionalProperties": false
	}`), &m))

	s := toGenaiSchema(m)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"intent"}, s.Required)
	require.Contains(t, s.Properties, "intent")
	assert.Equal(t, genai.TypeString, s.Properties["intent"].Type)
	assert.Equal(t, []string{"greeting", "unknown"}, s.Properties["intent"].Enum)
	require.NotNil(t, s.Properties["tags"].Items)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
}

func TestOpenAIGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"intent\":\"greeting\"}  "}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAI("test", "gpt-4o-mini", srv.URL+"/v1")
	out, err := p.Generate(context.Background(), Request{
		Prompt:     "hello",
		JSONSchema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"greeting"}`, out)

	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	p := NewOpenAI("test", "", srv.URL+"/v1")
	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "llama"})
	assert.Error(t, err)
}
