package intent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/skill"
)

type stubLabeler struct {
	res   Result
	err   error
	calls int
}

func (s *stubLabeler) Label(context.Context, string) (Result, error) {
	s.calls++
	return s.res, s.err
}

func TestFastPathForcesSearch(t *testing.T) {
	stub := &stubLabeler{res: Result{Intent: Action, Confidence: 0.9}}
	c := NewClassifier(stub, 0)

	for _, q := range []string{
		"What's the weather in Lisbon?",
		"latest Go release notes",
		"showtimes for Dune tonight",
		"NVDA stock price",
	} {
		res := c.Classify(context.Background(), q)
		assert.Equal(t, Search, res.Intent, q)
		assert.Equal(t, SourceFastPath, res.Source)
	}
	assert.Zero(t, stub.calls)
}

func TestClassifierFallsBackToKnowledge(t *testing.T) {
	ctx := context.Background()

	res := NewClassifier(nil, 0).Classify(ctx, "explain goroutines")
	assert.Equal(t, Knowledge, res.Intent)
	assert.Equal(t, SourceDefault, res.Source)

	res = NewClassifier(&stubLabeler{err: errors.New("down")}, 0).Classify(ctx, "explain goroutines")
	assert.Equal(t, Knowledge, res.Intent)

	res = NewClassifier(&stubLabeler{res: Result{Intent: Action, Confidence: 0.1}}, 0).Classify(ctx, "explain goroutines")
	assert.Equal(t, Knowledge, res.Intent)

	res = NewClassifier(&stubLabeler{res: Result{Intent: Action, Confidence: 0.8, Source: SourceRemote}}, 0).Classify(ctx, "rotate logs")
	assert.Equal(t, Action, res.Intent)
}

func TestRemoteLabeler(t *testing.T) {
	verifier := auth.NewVerifier("secret", 30*time.Second, auth.NewMemoryNonceStore())
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		label := "chat"
		if req["text"] == "what are my tasks" {
			label = "memory"
		}
		if req["text"] == "mystery" {
			label = "dance"
		}
		json.NewEncoder(w).Encode(map[string]any{"intent": label, "confidence": 0.9})
	})
	srv := httptest.NewServer(auth.RequireSignature(verifier, []string{"gateway"}, 1<<10)(handler))
	defer srv.Close()

	l := NewRemoteLabeler(auth.NewClient(srv.URL, auth.NewSigner("gateway", "secret"), 5*time.Second))

	res, err := l.Label(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, Chat, res.Intent)

	res, err = l.Label(context.Background(), "what are my tasks")
	require.NoError(t, err)
	assert.Equal(t, Task, res.Intent)

	res, err = l.Label(context.Background(), "mystery")
	require.NoError(t, err)
	assert.Equal(t, Knowledge, res.Intent)
	assert.Zero(t, res.Confidence)
}

func TestKeywordLabeler(t *testing.T) {
	tests := map[string]Intent{
		"hello, how are you":                  Chat,
		"what are my pending tasks":           Task,
		"create a script that rotates my logs": Action,
		"explain the CAP theorem":             Knowledge,
	}
	for text, want := range tests {
		res, err := KeywordLabeler{}.Label(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want, res.Intent, text)
	}
}

func TestLanguageHint(t *testing.T) {
	assert.Equal(t, skill.LanguageBash, LanguageHint("list all running docker containers"))
	assert.Equal(t, skill.LanguagePython, LanguageHint("fetch the bitcoin price from an api"))
	assert.Equal(t, skill.LanguageBash, LanguageHint("monitor the api latency"))
	assert.Equal(t, skill.LanguageBash, LanguageHint("do something nice"))
}
