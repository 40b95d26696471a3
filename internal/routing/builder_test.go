package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/config"
	"github.com/harunnryd/warden/internal/intent"
	"github.com/harunnryd/warden/internal/orchestrator"
	"github.com/harunnryd/warden/internal/skill"
)

const echoSkill = "---\nname: say-hello\ndescription: prints a greeting\ntriggers: [say hello]\n" +
	"execution_mode: native-script\ncommand: echo hello\ntimeout: 5\n---\n"

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name, skill.FileName), []byte(content), 0644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Auth.ServiceID = "router"
	cfg.Auth.Secret = "test-secret"
	cfg.Skills.BundledDir = filepath.Join(root, "skills")
	cfg.Skills.GeneratedDir = filepath.Join(root, "generated")
	cfg.Collaborators.MemoryDir = filepath.Join(root, "memory")
	cfg.Retrieval.IndexDir = ""
	cfg.Retrieval.Collection = "knowledge"
	return cfg
}

func TestBuild_RejectsMissingInputs(t *testing.T) {
	_, err := Build(context.Background(), nil, Shared{})
	require.Error(t, err)

	_, err = Build(context.Background(), testConfig(t), Shared{})
	require.Error(t, err)
}

func TestLoadSkills(t *testing.T) {
	cfg := testConfig(t)
	writeSkill(t, cfg.Skills.BundledDir, "say-hello", echoSkill)
	writeSkill(t, cfg.Skills.BundledDir, "disk-usage",
		"---\nname: disk-usage\ndescription: df\ntriggers: [disk usage]\nexecution_mode: native-script\ncommand: df -h\ntimeout: 10\n---\n")
	cfg.Skills.Disabled = []string{"disk-usage"}

	registry, err := LoadSkills(cfg.Skills)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	s, ok := registry.Get("say-hello")
	require.True(t, ok)
	assert.True(t, s.Trusted)
	assert.Equal(t, skill.SourceBundled, s.Source)

	assert.DirExists(t, cfg.Skills.GeneratedDir)
}

func TestLoadSkills_InvalidDefinition(t *testing.T) {
	cfg := testConfig(t)
	writeSkill(t, cfg.Skills.BundledDir, "broken", "---\nname: broken\n---\n")

	_, err := LoadSkills(cfg.Skills)
	require.Error(t, err)
}

func TestBuild_LocalStackRunsBundledSkill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("echo is a shell builtin on windows")
	}
	cfg := testConfig(t)
	writeSkill(t, cfg.Skills.BundledDir, "say-hello", echoSkill)

	registry, err := LoadSkills(cfg.Skills)
	require.NoError(t, err)

	components, err := Build(context.Background(), cfg, Shared{Skills: registry})
	require.NoError(t, err)
	require.NotNil(t, components.Router)
	require.NotNil(t, components.Index)
	assert.Zero(t, components.Index.Count())

	route, err := components.Router.Dispatch(context.Background(), orchestrator.Request{
		Text:   "say hello",
		Intent: intent.Action,
	})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.PathSkillExecution, route.Path)
	assert.Equal(t, "say-hello", route.Skill)
	assert.Equal(t, "hello", route.Result)
}

func TestBuild_RemoteClassifierIsSigned(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("echo is a shell builtin on windows")
	}
	var calls atomic.Int32
	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/classify" || r.Header.Get(auth.HeaderSignature) == "" ||
			r.Header.Get(auth.HeaderServiceID) != "router" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"intent": "action", "confidence": 0.9})
	}))
	defer classifier.Close()

	cfg := testConfig(t)
	cfg.Collaborators.ClassifierURL = classifier.URL
	writeSkill(t, cfg.Skills.BundledDir, "say-hello", echoSkill)

	registry, err := LoadSkills(cfg.Skills)
	require.NoError(t, err)
	components, err := Build(context.Background(), cfg, Shared{Skills: registry})
	require.NoError(t, err)

	route, err := components.Router.Dispatch(context.Background(), orchestrator.Request{Text: "please say hello"})
	require.NoError(t, err)
	assert.Equal(t, intent.Action, route.Intent)
	assert.Equal(t, orchestrator.PathSkillExecution, route.Path)
	assert.Equal(t, int32(1), calls.Load())
}
