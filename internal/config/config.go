package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Auth          AuthConfig          `koanf:"auth"`
	Redis         RedisConfig         `koanf:"redis"`
	Skills        SkillsConfig        `koanf:"skills"`
	Approvals     ApprovalsConfig     `koanf:"approvals"`
	Router        RouterConfig        `koanf:"router"`
	Collaborators CollaboratorsConfig `koanf:"collaborators"`
	Models        ModelsConfig        `koanf:"models"`
	Sanitizer     SanitizerConfig     `koanf:"sanitizer"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Ledger        LedgerConfig        `koanf:"ledger"`
	Notify        NotifyConfig        `koanf:"notify"`
	Daemon        DaemonConfig        `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
	MaxBodyBytes    int64  `koanf:"max_body_bytes"`
	IdempotencyTTL  string `koanf:"idempotency_ttl"`
}

// AuthConfig holds the inter-service trust settings. The secret and the
// operator key never appear in logs; see LogValue.
type AuthConfig struct {
	ServiceID      string         `koanf:"service_id"`
	Secret         string         `koanf:"secret"`
	SecretSource   string         `koanf:"secret_source"`
	Window         string         `koanf:"window"`
	NonceBackend   string         `koanf:"nonce_backend"`
	OperatorAPIKey string         `koanf:"operator_api_key"`
	Allowed        AllowedCallers `koanf:"allowed"`
}

// AllowedCallers is the per-route-group allow-list of service identities.
type AllowedCallers struct {
	Gateway   []string `koanf:"gateway"`
	Skills    []string `koanf:"skills"`
	Approvals []string `koanf:"approvals"`
}

func (a AuthConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("service_id", a.ServiceID),
		slog.String("secret_source", a.SecretSource),
		slog.Bool("secret_set", a.Secret != ""),
		slog.Bool("operator_key_set", a.OperatorAPIKey != ""),
		slog.String("window", a.Window),
		slog.String("nonce_backend", a.NonceBackend),
	)
}

type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

type SkillsConfig struct {
	BundledDir   string   `koanf:"bundled_dir"`
	GeneratedDir string   `koanf:"generated_dir"`
	Disabled     []string `koanf:"disabled"`
}

type ApprovalsConfig struct {
	StoreDir      string `koanf:"store_dir"`
	TTL           string `koanf:"ttl"`
	SweepSchedule string `koanf:"sweep_schedule"`
	PollInterval  string `koanf:"poll_interval"`
	MaxWait       string `koanf:"max_wait"`
	RatePerMinute int    `koanf:"rate_per_minute"`
	Burst         int    `koanf:"burst"`
	ServerURL     string `koanf:"server_url"`
}

type RouterConfig struct {
	RetrievalTimeout    string      `koanf:"retrieval_timeout"`
	CreationTimeout     string      `koanf:"creation_timeout"`
	CollaboratorTimeout string      `koanf:"collaborator_timeout"`
	RetrievalMaxTokens  int         `koanf:"retrieval_max_tokens"`
	SearchMaxResults    int         `koanf:"search_max_results"`
	Costs               CostsConfig `koanf:"costs"`
}

// CostsConfig is the marginal cost attributed to each route path.
type CostsConfig struct {
	SkillExecution float64 `koanf:"skill_execution"`
	SkillCreation  float64 `koanf:"skill_creation"`
	CloudFallback  float64 `koanf:"cloud_fallback"`
	Local          float64 `koanf:"local"`
}

type CollaboratorsConfig struct {
	ClassifierURL string `koanf:"classifier_url"`
	RetrievalURL  string `koanf:"retrieval_url"`
	MemoryURL     string `koanf:"memory_url"`
	SearchURL     string `koanf:"search_url"`
	CreatorURL    string `koanf:"creator_url"`
	MemoryDir     string `koanf:"memory_dir"`
}

type ModelsConfig struct {
	Local     string          `koanf:"local"`
	Cloud     string          `koanf:"cloud"`
	Embedding string          `koanf:"embedding"`
	Registry  []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name           string `koanf:"name"`
	Provider       string `koanf:"provider"`
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	MaxTokens      int    `koanf:"max_tokens"`
	RequestTimeout string `koanf:"request_timeout"`
}

type SanitizerConfig struct {
	Keywords []string `koanf:"keywords"`
}

type RetrievalConfig struct {
	DocsDir    string `koanf:"docs_dir"`
	IndexDir   string `koanf:"index_dir"`
	Collection string `koanf:"collection"`
}

type LedgerConfig struct {
	Path string `koanf:"path"`
}

type NotifyConfig struct {
	Slack    SlackConfig    `koanf:"slack"`
	Telegram TelegramConfig `koanf:"telegram"`
}

type SlackConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BotToken string `koanf:"bot_token"`
	Channel  string `koanf:"channel"`
	APIURL   string `koanf:"api_url"`
}

type TelegramConfig struct {
	Enabled     bool   `koanf:"enabled"`
	BotToken    string `koanf:"bot_token"`
	ChatID      int64  `koanf:"chat_id"`
	APIEndpoint string `koanf:"api_endpoint"`
}

type DaemonConfig struct {
	DataDir                string `koanf:"data_dir"`
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	StaleLockTTL           string `koanf:"stale_lock_ttl"`
}

const (
	DefaultServerPort                = 8080
	DefaultServerLogLevel            = "info"
	DefaultServerLogFormat           = "text"
	DefaultServerReadTimeout         = "10s"
	DefaultServerWriteTimeout        = "150s"
	DefaultServerIdleTimeout         = "60s"
	DefaultServerShutdownTimeout     = "5s"
	DefaultServerMaxBodyBytes        = 1 << 20
	DefaultServerIdempotencyTTL      = "24h"
	DefaultAuthServiceID             = "gateway"
	DefaultAuthSecretSource          = "env"
	DefaultAuthWindow                = "30s"
	DefaultAuthNonceBackend          = "memory"
	DefaultRedisAddr                 = "localhost:6379"
	DefaultRedisKeyPrefix            = "warden:nonce:"
	DefaultApprovalsTTL              = "5m"
	DefaultApprovalsSweepSchedule    = "@every 15s"
	DefaultApprovalsPollInterval     = "5s"
	DefaultApprovalsMaxWait          = "5m"
	DefaultApprovalsRatePerMinute    = 30
	DefaultApprovalsBurst            = 5
	DefaultApprovalsServerURL        = "http://localhost:8080"
	DefaultRouterRetrievalTimeout    = "5s"
	DefaultRouterCreationTimeout     = "120s"
	DefaultRouterCollaboratorTimeout = "30s"
	DefaultRouterRetrievalMaxTokens  = 300
	DefaultRouterSearchMaxResults    = 3
	DefaultCostSkillExecution        = 0.0
	DefaultCostSkillCreation         = 0.10
	DefaultCostCloudFallback         = 0.006
	DefaultCostLocal                 = 0.0
	DefaultModelLocal                = "phi4-mini:3.8b"
	DefaultModelCloud                = "claude-sonnet-4-20250514"
	DefaultModelEmbedding            = "nomic-embed-text"
	DefaultModelMaxTokens            = 1024
	DefaultModelRequestTimeout       = "120s"
	DefaultOpenAIBaseURL             = "https://api.openai.com/v1"
	DefaultOllamaBaseURL             = "http://localhost:11434/v1"
	DefaultOllamaAPIKey              = "ollama"
	DefaultRetrievalCollection       = "knowledge"
	DefaultDaemonShutdownTimeout     = "30s"
	DefaultDaemonHealthCheckInterval = "30s"
	DefaultDaemonStartupShutdown     = "10s"
	DefaultDaemonStaleLockTTL        = "15m"
	DefaultKeyringService            = "warden"
)

// Load builds the configuration from defaults, an optional YAML file, the
// WARDEN_ environment and command flags, in increasing precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// .env never overrides variables already present in the process.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Debug("Ignoring unreadable .env file", "error", err)
	}

	defaults := map[string]interface{}{
		"server.port":                     DefaultServerPort,
		"server.log_level":                DefaultServerLogLevel,
		"server.log_format":               DefaultServerLogFormat,
		"server.read_timeout":             DefaultServerReadTimeout,
		"server.write_timeout":            DefaultServerWriteTimeout,
		"server.idle_timeout":             DefaultServerIdleTimeout,
		"server.shutdown_timeout":         DefaultServerShutdownTimeout,
		"server.max_body_bytes":           DefaultServerMaxBodyBytes,
		"server.idempotency_ttl":          DefaultServerIdempotencyTTL,
		"auth.service_id":                 DefaultAuthServiceID,
		"auth.secret":                     "",
		"auth.operator_api_key":           "",
		"auth.secret_source":              DefaultAuthSecretSource,
		"auth.window":                     DefaultAuthWindow,
		"auth.nonce_backend":              DefaultAuthNonceBackend,
		"auth.allowed.gateway":            []string{"cli", "telegram-bot", "slack-bot"},
		"auth.allowed.skills":             []string{"cli", "codebot"},
		"auth.allowed.approvals":          []string{"codebot"},
		"redis.addr":                      DefaultRedisAddr,
		"redis.password":                  "",
		"redis.key_prefix":                DefaultRedisKeyPrefix,
		"skills.bundled_dir":              filepath.Join("~", ".warden", "skills", "bundled"),
		"skills.generated_dir":            filepath.Join("~", ".warden", "skills", "generated"),
		"approvals.store_dir":             filepath.Join("~", ".warden", "approvals"),
		"approvals.ttl":                   DefaultApprovalsTTL,
		"approvals.sweep_schedule":        DefaultApprovalsSweepSchedule,
		"approvals.poll_interval":         DefaultApprovalsPollInterval,
		"approvals.max_wait":              DefaultApprovalsMaxWait,
		"approvals.rate_per_minute":       DefaultApprovalsRatePerMinute,
		"approvals.burst":                 DefaultApprovalsBurst,
		"approvals.server_url":            DefaultApprovalsServerURL,
		"collaborators.classifier_url":    "",
		"collaborators.retrieval_url":     "",
		"collaborators.memory_url":        "",
		"collaborators.search_url":        "",
		"collaborators.creator_url":       "",
		"collaborators.memory_dir":        filepath.Join("~", ".warden", "memory"),
		"router.retrieval_timeout":        DefaultRouterRetrievalTimeout,
		"router.creation_timeout":         DefaultRouterCreationTimeout,
		"router.collaborator_timeout":     DefaultRouterCollaboratorTimeout,
		"router.retrieval_max_tokens":     DefaultRouterRetrievalMaxTokens,
		"router.search_max_results":       DefaultRouterSearchMaxResults,
		"router.costs.skill_execution":    DefaultCostSkillExecution,
		"router.costs.skill_creation":     DefaultCostSkillCreation,
		"router.costs.cloud_fallback":     DefaultCostCloudFallback,
		"router.costs.local":              DefaultCostLocal,
		"models.local":                    DefaultModelLocal,
		"models.cloud":                    DefaultModelCloud,
		"models.embedding":                DefaultModelEmbedding,
		"retrieval.index_dir":             filepath.Join("~", ".warden", "vectors"),
		"retrieval.collection":            DefaultRetrievalCollection,
		"ledger.path":                     filepath.Join("~", ".warden", "ledger.db"),
		"notify.slack.bot_token":          "",
		"notify.slack.channel":            "",
		"notify.telegram.bot_token":       "",
		"daemon.data_dir":                 filepath.Join("~", ".warden"),
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdown,
		"daemon.stale_lock_ttl":           DefaultDaemonStaleLockTTL,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".warden", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	k.Load(env.Provider("WARDEN_", ".", envKeyMapper(k.Keys())), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	if err := resolveSecret(&cfg.Auth); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "ollama"
		}
	}
	injectProviderKeys(&cfg.Models)

	return &cfg, nil
}

// envKeyMapper maps WARDEN_AUTH_OPERATOR_API_KEY to auth.operator_api_key by
// matching against the known keys, since both the nesting separator and the
// key names use underscores. Unknown names fall back to one level per
// underscore.
func envKeyMapper(known []string) func(string) string {
	lookup := make(map[string]string, len(known))
	for _, key := range known {
		lookup[strings.ReplaceAll(key, ".", "_")] = key
	}
	return func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, "WARDEN_"))
		if key, ok := lookup[name]; ok {
			return key
		}
		return strings.ReplaceAll(name, "_", ".")
	}
}

// Validate checks the settings a serving process cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Auth.ServiceID) == "" {
		return fmt.Errorf("auth.service_id is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required (set WARDEN_AUTH_SECRET or SERVICE_SECRET)")
	}
	if c.Auth.OperatorAPIKey == "" {
		return fmt.Errorf("auth.operator_api_key is required")
	}
	switch c.Auth.NonceBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("auth.nonce_backend must be memory or redis, got %q", c.Auth.NonceBackend)
	}
	// Blank durations fall back to their defaults, so only malformed or
	// non-positive values are rejected.
	for name, d := range map[string][2]string{
		"auth.window":                 {c.Auth.Window, DefaultAuthWindow},
		"approvals.ttl":               {c.Approvals.TTL, DefaultApprovalsTTL},
		"approvals.poll_interval":     {c.Approvals.PollInterval, DefaultApprovalsPollInterval},
		"approvals.max_wait":          {c.Approvals.MaxWait, DefaultApprovalsMaxWait},
		"router.retrieval_timeout":    {c.Router.RetrievalTimeout, DefaultRouterRetrievalTimeout},
		"router.creation_timeout":     {c.Router.CreationTimeout, DefaultRouterCreationTimeout},
		"router.collaborator_timeout": {c.Router.CollaboratorTimeout, DefaultRouterCollaboratorTimeout},
		"server.idempotency_ttl":      {c.Server.IdempotencyTTL, DefaultServerIdempotencyTTL},
	} {
		if _, err := DurationOrDefault(d[0], d[1]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func injectProviderKeys(models *ModelsConfig) {
	envKeys := map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"gemini":    os.Getenv("GEMINI_API_KEY"),
	}
	for i, m := range models.Registry {
		if m.APIKey != "" {
			continue
		}
		if key := envKeys[m.Provider]; key != "" {
			models.Registry[i].APIKey = key
		}
	}
}

func normalizePathFields(cfg *Config) error {
	fields := []*string{
		&cfg.Skills.BundledDir,
		&cfg.Skills.GeneratedDir,
		&cfg.Approvals.StoreDir,
		&cfg.Retrieval.DocsDir,
		&cfg.Collaborators.MemoryDir,
		&cfg.Retrieval.IndexDir,
		&cfg.Ledger.Path,
		&cfg.Daemon.DataDir,
	}
	for _, field := range fields {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}
