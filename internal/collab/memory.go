package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/warden/internal/auth"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

// Task is one entry of the operator's task list.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status,omitempty"`
	Created     string `json:"created,omitempty"`
}

type TaskList struct {
	Todo      []Task `json:"todo"`
	Completed []Task `json:"completed"`
	Updated   string `json:"updated,omitempty"`
}

// Summary renders the open tasks as a compact prompt section.
func (l TaskList) Summary() string {
	if len(l.Todo) == 0 {
		return "No open tasks."
	}
	var b strings.Builder
	b.WriteString("Open tasks:\n")
	for _, t := range l.Todo {
		fmt.Fprintf(&b, "- [%s] %s", t.ID, t.Title)
		if t.Priority != "" {
			fmt.Fprintf(&b, " (priority: %s)", t.Priority)
		}
		b.WriteString("\n")
	}
	if n := len(l.Completed); n > 0 {
		fmt.Fprintf(&b, "%d completed.\n", n)
	}
	return b.String()
}

// MemoryReader supplies the operator's standing context and task list.
type MemoryReader interface {
	Context(ctx context.Context) (string, error)
	Tasks(ctx context.Context) (TaskList, error)
}

// MemoryClient reads memory from the memory collaborator.
type MemoryClient struct {
	client *auth.Client
}

func NewMemoryClient(client *auth.Client) *MemoryClient {
	return &MemoryClient{client: client}
}

func (m *MemoryClient) Context(ctx context.Context) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := m.client.Do(ctx, http.MethodGet, "/memory/context", nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (m *MemoryClient) Tasks(ctx context.Context) (TaskList, error) {
	var out TaskList
	if err := m.client.Do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return TaskList{}, err
	}
	return out, nil
}

// memoryFiles are joined, in order, into the memory context.
var memoryFiles = []string{"soul.md", "user.md", "session.md"}

const tasksFile = "tasks.json"

// FileMemory reads the same memory layout from a local directory.
type FileMemory struct {
	dir string
}

func NewFileMemory(dir string) *FileMemory {
	return &FileMemory{dir: dir}
}

func (m *FileMemory) Context(_ context.Context) (string, error) {
	parts := make([]string, 0, len(memoryFiles))
	for _, name := range memoryFiles {
		data, err := os.ReadFile(filepath.Join(m.dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", wardenErrors.Unavailable(fmt.Sprintf("read %s: %v", name, err))
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "# Operator Context\n\n" + strings.Join(parts, "\n\n---\n\n"), nil
}

func (m *FileMemory) Tasks(_ context.Context) (TaskList, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, tasksFile))
	if os.IsNotExist(err) {
		return TaskList{}, nil
	}
	if err != nil {
		return TaskList{}, wardenErrors.Unavailable(fmt.Sprintf("read tasks: %v", err))
	}
	var out TaskList
	if err := json.Unmarshal(data, &out); err != nil {
		return TaskList{}, wardenErrors.Unavailable(fmt.Sprintf("decode tasks: %v", err))
	}
	return out, nil
}
