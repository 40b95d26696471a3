package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

func echoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := ServiceIDFrom(r.Context())
		require.True(t, ok)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Caller", id)
		w.Write(body)
	})
}

func TestRequireSignature(t *testing.T) {
	verifier := NewVerifier(testSecret, 30*time.Second, NewMemoryNonceStore())
	handler := RequireSignature(verifier, []string{"cli"}, 1024)(echoHandler(t))
	signer := NewSigner("cli", testSecret)

	body := []byte(`{"text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(body))
	signer.Sign(http.MethodPost, "/message", body).Apply(req.Header)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cli", rec.Header().Get("X-Caller"))
	assert.Equal(t, string(body), rec.Body.String())

	// Same headers again is a replay.
	replay := httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(body))
	replay.Header = req.Header.Clone()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, replay)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"replayed"}`, rec.Body.String())
}

func TestRequireSignatureConcurrentReplay(t *testing.T) {
	verifier := NewVerifier(testSecret, 30*time.Second, NewMemoryNonceStore())
	var served atomic.Int32
	handler := RequireSignature(verifier, []string{"cli"}, 1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"text":"hi"}`)
	signed := make(http.Header)
	NewSigner("cli", testSecret).Sign(http.MethodPost, "/message", body).Apply(signed)

	const callers = 16
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(body))
			req.Header = signed.Clone()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusUnauthorized, code)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int32(1), served.Load())
}

func TestRequireSignatureStatusMapping(t *testing.T) {
	verifier := NewVerifier(testSecret, 30*time.Second, NewMemoryNonceStore())
	handler := RequireSignature(verifier, []string{"codebot"}, 16)(echoHandler(t))

	t.Run("unsigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/skills", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())
	})

	t.Run("forbidden caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/skills", nil)
		NewSigner("cli", testSecret).Sign(http.MethodGet, "/skills", nil).Apply(req.Header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		signer := NewSigner("codebot", testSecret)
		signer.now = fixedClock(time.Now().Add(-time.Hour))
		req := httptest.NewRequest(http.MethodGet, "/skills", nil)
		signer.Sign(http.MethodGet, "/skills", nil).Apply(req.Header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"expired"}`, rec.Body.String())
	})

	t.Run("body too large", func(t *testing.T) {
		body := bytes.Repeat([]byte("x"), 64)
		req := httptest.NewRequest(http.MethodPost, "/message", bytes.NewReader(body))
		NewSigner("codebot", testSecret).Sign(http.MethodPost, "/message", body).Apply(req.Header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestRequireOperatorKey(t *testing.T) {
	handler := RequireOperatorKey("op-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set(HeaderAPIKey, "op-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientSignsRequests(t *testing.T) {
	verifier := NewVerifier(testSecret, 30*time.Second, NewMemoryNonceStore())
	mux := http.NewServeMux()
	mux.HandleFunc("/context", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"context":"q=` + r.URL.Query().Get("query") + `"}`))
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(RequireSignature(verifier, []string{"gateway"}, 1024)(mux))
	defer srv.Close()

	client := NewClient(srv.URL, NewSigner("gateway", testSecret), 5*time.Second)

	var out struct {
		Context string `json:"context"`
	}
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/context?query=go+modules&max_tokens=300", nil, &out))
	assert.Equal(t, "q=go modules", out.Context)

	err := client.Do(context.Background(), http.MethodPost, "/boom", map[string]string{"a": "b"}, nil)
	assert.ErrorIs(t, err, wardenErrors.ErrCollaboratorUnavailable)

	stranger := NewClient(srv.URL, NewSigner("intruder", testSecret), 5*time.Second)
	err = stranger.Do(context.Background(), http.MethodGet, "/context?query=x", nil, nil)
	assert.ErrorIs(t, err, wardenErrors.ErrForbidden)
}

func TestClientUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", NewSigner("gateway", testSecret), time.Second)
	err := client.Do(context.Background(), http.MethodGet, "/context", nil, nil)
	assert.ErrorIs(t, err, wardenErrors.ErrCollaboratorUnavailable)
}
