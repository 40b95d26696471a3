package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"
)

const (
	// DefaultResults is how many chunks a query pulls from the index.
	DefaultResults = 2

	chunkTokens   = 300
	overlapTokens = 50
)

var sectionSplit = regexp.MustCompile(`\n##\s+`)

// Embedder is the slice of the model router the index needs.
type Embedder interface {
	RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error)
}

// EmbeddingFunc adapts an embedding route to chromem. Vectors are
// normalized because the collection ranks by dot product.
func EmbeddingFunc(e Embedder, model string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := e.RouteEmbedding(ctx, model, text)
		if err != nil {
			return nil, err
		}
		return normalize(v), nil
	}
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// LocalIndex serves retrieval from an in-process chromem collection.
type LocalIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	results    int
}

// NewLocalIndex opens the index at dir, or an in-memory one when dir is
// empty.
func NewLocalIndex(dir, collection string, embed chromem.EmbeddingFunc) (*LocalIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector index: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}
	return &LocalIndex{db: db, collection: col, results: DefaultResults}, nil
}

func (x *LocalIndex) Count() int {
	return x.collection.Count()
}

// Ingest chunks every markdown or text file under dir and upserts the
// chunks. Chunk ids are stable per file, so re-ingesting replaces them.
func (x *LocalIndex) Ingest(ctx context.Context, dir string) (int, error) {
	var docs []chromem.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
		default:
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		docs = append(docs, Chunk(string(content), filepath.ToSlash(rel))...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := x.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("index documents: %w", err)
	}
	slog.Info("Knowledge indexed", "dir", dir, "chunks", len(docs))
	return len(docs), nil
}

// Chunk splits markdown on second-level headers, then into overlapping
// word windows of roughly chunkTokens.
func Chunk(content, source string) []chromem.Document {
	var docs []chromem.Document
	window := chunkTokens * 4
	step := window - overlapTokens*4

	for _, section := range sectionSplit.Split(content, -1) {
		if strings.TrimSpace(section) == "" {
			continue
		}
		title, body, found := strings.Cut(section, "\n")
		title = strings.TrimSpace(strings.TrimLeft(title, "#"))
		if !found {
			body = section
		}
		if title == "" {
			title = "Intro"
		}

		words := strings.Fields(body)
		if len(words) == 0 {
			continue
		}
		for start, n := 0, 0; start < len(words); start, n = start+step, n+1 {
			end := start + window
			if end > len(words) {
				end = len(words)
			}
			docs = append(docs, chromem.Document{
				ID:      fmt.Sprintf("%s#%s#%d", source, title, n),
				Content: "## " + title + "\n" + strings.Join(words[start:end], " "),
				Metadata: map[string]string{
					"source":  source,
					"section": title,
				},
			})
			if end == len(words) {
				break
			}
		}
	}
	return docs
}

func (x *LocalIndex) Retrieve(ctx context.Context, query string, maxTokens int) (Context, error) {
	n := x.results
	if count := x.collection.Count(); count < n {
		n = count
	}
	if n == 0 || strings.TrimSpace(query) == "" {
		return Context{Sources: []string{}}, nil
	}

	results, err := x.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return Context{}, fmt.Errorf("query index: %w", err)
	}

	parts := make([]string, 0, len(results))
	seen := make(map[string]bool)
	sources := []string{}
	for _, r := range results {
		source := r.Metadata["source"]
		parts = append(parts, fmt.Sprintf("[From %s]\n%s", source, r.Content))
		if !seen[source] {
			seen[source] = true
			sources = append(sources, source)
		}
	}
	sort.Strings(sources)

	text := truncate(strings.Join(parts, "\n\n---\n\n"), maxTokens)
	return Context{Text: text, TokensEstimate: EstimateTokens(text), Sources: sources}, nil
}
