package retrieval

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/config"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/model"
	"github.com/harunnryd/warden/internal/model/contract"
)

const testSecret = "retrieval-test-secret"

var vocabulary = []string{"kubernetes", "pod", "cluster", "bread", "flour", "oven"}

// wordEmbedder counts vocabulary words, plus a constant dimension so no
// vector is ever zero.
type wordEmbedder struct{}

func (wordEmbedder) RouteEmbedding(_ context.Context, _ string, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := make([]float32, len(vocabulary)+1)
	for i, word := range vocabulary {
		v[i] = float32(strings.Count(lower, word))
	}
	v[len(vocabulary)] = 0.1
	return v, nil
}

// switchEmbedder embeds like wordEmbedder until down is set.
type switchEmbedder struct {
	mu      sync.Mutex
	down    bool
	queries []string
}

func (s *switchEmbedder) Generate(context.Context, contract.CompletionRequest) (*contract.CompletionResponse, error) {
	return &contract.CompletionResponse{}, nil
}

func (s *switchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.queries = append(s.queries, text)
	down := s.down
	s.mu.Unlock()
	if down {
		return nil, errors.New("connection refused")
	}
	return wordEmbedder{}.RouteEmbedding(ctx, "", text)
}

func (s *switchEmbedder) Name() string { return "openai" }

func writeDocs(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k8s.md"),
		[]byte("# Ops\n\n## Scheduling\nKubernetes places every pod on a cluster node.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baking.md"),
		[]byte("## Bread\nBread needs flour, water and a hot oven.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte("kubernetes"), 0644))
	return dir
}

func TestLocalIndexRetrieve(t *testing.T) {
	index, err := NewLocalIndex("", "knowledge", EmbeddingFunc(wordEmbedder{}, "embed"))
	require.NoError(t, err)

	n, err := index.Ingest(context.Background(), writeDocs(t))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, index.Count())

	got, err := index.Retrieve(context.Background(), "how does kubernetes run a pod", 300)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Text, "[From k8s.md]"), got.Text)
	assert.Contains(t, got.Text, "cluster node")
	assert.Equal(t, EstimateTokens(got.Text), got.TokensEstimate)
	assert.NotEmpty(t, got.Sources)
}

func TestLocalIndexClampsResultsToCount(t *testing.T) {
	index, err := NewLocalIndex("", "knowledge", EmbeddingFunc(wordEmbedder{}, "embed"))
	require.NoError(t, err)

	got, err := index.Retrieve(context.Background(), "anything", 300)
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Empty(t, got.Sources)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.md"), []byte("Kubernetes pod basics"), 0644))
	_, err = index.Ingest(context.Background(), dir)
	require.NoError(t, err)

	got, err = index.Retrieve(context.Background(), "kubernetes", 300)
	require.NoError(t, err)
	assert.Equal(t, []string{"one.md"}, got.Sources)
}

func TestLocalIndexReingestReplacesChunks(t *testing.T) {
	index, err := NewLocalIndex(t.TempDir(), "knowledge", EmbeddingFunc(wordEmbedder{}, "embed"))
	require.NoError(t, err)

	dir := writeDocs(t)
	_, err = index.Ingest(context.Background(), dir)
	require.NoError(t, err)
	_, err = index.Ingest(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, index.Count())
}

func TestLocalIndexTruncatesToMaxTokens(t *testing.T) {
	index, err := NewLocalIndex("", "knowledge", EmbeddingFunc(wordEmbedder{}, "embed"))
	require.NoError(t, err)
	_, err = index.Ingest(context.Background(), writeDocs(t))
	require.NoError(t, err)

	got, err := index.Retrieve(context.Background(), "kubernetes pod", 5)
	require.NoError(t, err)
	assert.Len(t, got.Text, 5*4+len("..."))
	assert.True(t, strings.HasSuffix(got.Text, "..."))
}

func TestChunk(t *testing.T) {
	words := strings.Repeat("word ", 2500)
	docs := Chunk("# Title\nintro text\n## Long\n"+words, "notes.md")

	require.Len(t, docs, 4)
	assert.Equal(t, "Title", docs[0].Metadata["section"])
	assert.Equal(t, "## Title\nintro text", docs[0].Content)
	for _, d := range docs[1:] {
		assert.Equal(t, "Long", d.Metadata["section"])
		assert.Equal(t, "notes.md", d.Metadata["source"])
	}
	assert.Equal(t, "notes.md#Long#0", docs[1].ID)
	assert.Equal(t, "notes.md#Long#2", docs[3].ID)

	assert.Empty(t, Chunk("   \n", "empty.md"))
}

func signedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	verifier := auth.NewVerifier(testSecret, 30*time.Second, auth.NewMemoryNonceStore())
	srv := httptest.NewServer(auth.RequireSignature(verifier, []string{"gateway"}, 1<<20)(handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRetriever(t *testing.T) {
	srv := signedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/context", r.URL.Path)
		assert.Equal(t, "disk quota policy", r.URL.Query().Get("query"))
		assert.Equal(t, "300", r.URL.Query().Get("max_tokens"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"context":"[From soul.md]\nquota is 10G","tokens_estimate":0,"sources":["soul.md"]}`))
	})

	client := auth.NewClient(srv.URL, auth.NewSigner("gateway", testSecret), time.Second)
	got, err := NewHTTPRetriever(client).Retrieve(context.Background(), "disk quota policy", 300)
	require.NoError(t, err)
	assert.Equal(t, "[From soul.md]\nquota is 10G", got.Text)
	assert.Equal(t, EstimateTokens(got.Text), got.TokensEstimate)
	assert.Equal(t, []string{"soul.md"}, got.Sources)
}

func TestHTTPRetrieverUnavailable(t *testing.T) {
	srv := signedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := auth.NewClient(srv.URL, auth.NewSigner("gateway", testSecret), time.Second)
	_, err := NewHTTPRetriever(client).Retrieve(context.Background(), "q", 300)
	assert.ErrorIs(t, err, wardenErrors.ErrCollaboratorUnavailable)
}

func TestLocalIndexFailingEmbedderDoesNotReachOtherModels(t *testing.T) {
	router, err := model.NewModelRouter(context.Background(), config.ModelsConfig{})
	require.NoError(t, err)
	local := &switchEmbedder{}
	cloud := &switchEmbedder{}
	router.Register("nomic", local, 0, time.Second)
	router.Register("cloud-embed", cloud, 0, time.Second)

	index, err := NewLocalIndex("", "knowledge", EmbeddingFunc(router, "nomic"))
	require.NoError(t, err)
	_, err = index.Ingest(context.Background(), writeDocs(t))
	require.NoError(t, err)

	local.down = true
	_, err = index.Retrieve(context.Background(), "my token is hunter2", 300)
	require.Error(t, err)
	assert.Contains(t, local.queries, "my token is hunter2")
	assert.Empty(t, cloud.queries)
}
