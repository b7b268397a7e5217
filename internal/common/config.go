package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/faber/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment"` // "development" or "production"
	Server        ServerConfig        `toml:"server"`
	Storage       StorageConfig       `toml:"storage"`
	Logging       LoggingConfig       `toml:"logging"`
	BackgroundJob BackgroundJobConfig `toml:"background_job"`
	AuditLog      AuditLogConfig      `toml:"audit_log"`
	Webhook       WebhookConfig       `toml:"webhook"`
	GitHub        GitHubConfig        `toml:"github"`
	Container     ContainerConfig     `toml:"container"`
	LLM           LLMConfig           `toml:"llm"`
	WebSocket     WebSocketConfig     `toml:"websocket"`
	Variables     KeysDirConfig       `toml:"variables"` // Variables directory (./keys/*.toml) for key/value pairs
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Format        string   `toml:"format"`          // "json" or "text"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs (default: "15:04:05.000")
	MinEventLevel string   `toml:"min_event_level"` // Minimum log level to publish as events to UI
}

// BackgroundJobConfig controls the job queue, worker pool, and timeouts
type BackgroundJobConfig struct {
	MaxConcurrency          int               `toml:"max_concurrency"`           // Worker pool size (default: 4)
	MaxQueueSize            int               `toml:"max_queue_size"`            // Total queue depth across priorities (default: 1000)
	EnablePrioritization    bool              `toml:"enable_prioritization"`     // Priority-ordered dequeue when true
	PlanTimeoutSeconds      int               `toml:"plan_timeout_seconds"`      // Per-job timeout for generate_plan (0 disables)
	ExecutionTimeoutSeconds int               `toml:"execution_timeout_seconds"` // Per-job timeout for execute_plan (0 disables)
	DefaultTimeoutSeconds   int               `toml:"default_timeout_seconds"`   // Timeout for other job types (0 disables)
	DrainTimeoutSeconds     int               `toml:"drain_timeout_seconds"`     // Shutdown drain window (default: 30)
	RetryPolicy             RetryPolicyConfig `toml:"retry_policy"`
}

// RetryPolicyConfig controls retry behavior for failed jobs
type RetryPolicyConfig struct {
	Enabled         bool    `toml:"enabled"`           // Master retry switch (default: true)
	MaxRetries      int     `toml:"max_retries"`       // Default retry budget per job (default: 3)
	BaseDelayMs     int64   `toml:"base_delay_ms"`     // Base backoff delay (default: 500)
	MaxDelayMs      int64   `toml:"max_delay_ms"`      // Upper clamp on computed delay (default: 30000)
	BackoffStrategy string  `toml:"backoff_strategy"`  // "constant", "linear", or "exponential"
	MinJitterFactor float64 `toml:"min_jitter_factor"` // Lower jitter bound (default: 0.0)
	MaxJitterFactor float64 `toml:"max_jitter_factor"` // Upper jitter bound (default: 0.2)
}

// AuditLogConfig controls audit persistence and cleanup
type AuditLogConfig struct {
	RetentionDays   int    `toml:"retention_days"`   // Age cutoff for cleanup (default: 90)
	CleanupSchedule string `toml:"cleanup_schedule"` // Cron schedule for retention runs (default: "0 3 * * *")
}

// WebhookConfig controls inbound webhook handling
type WebhookConfig struct {
	Secret string `toml:"secret"` // HMAC secret; empty disables signature verification
	Label  string `toml:"label"`  // Issue label that triggers planning (default: "copilot-assisted")
}

// GitHubConfig contains hosting platform API configuration
type GitHubConfig struct {
	Token             string `toml:"token"`               // API token; resolved via env/KV when empty
	BaseURL           string `toml:"base_url"`            // Enterprise base URL; empty uses github.com
	RequestsPerSecond int    `toml:"requests_per_second"` // Client-side rate limit (default: 5)
}

// KeysDirConfig points at the directory holding TOML variable files
// (API keys and secrets loaded into the KV store at startup)
type KeysDirConfig struct {
	Dir string `toml:"dir"`
}

// ContainerConfig controls the execution workspace runtime
type ContainerConfig struct {
	Runtime        string `toml:"runtime"`         // "local" runs steps via os/exec in a scratch workspace
	WorkspaceRoot  string `toml:"workspace_root"`  // Parent directory for task workspaces
	KeepWorkspaces bool   `toml:"keep_workspaces"` // Skip workspace cleanup for debugging
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderOpenAI      LLMProvider = "openai"
	LLMProviderAzureOpenAI LLMProvider = "azureopenai"
	LLMProviderAnthropic   LLMProvider = "anthropic"
	LLMProviderGemini      LLMProvider = "gemini"
)

// LLMRoleConfig configures one model role. Planner and Executor are
// required, Thinker is optional.
type LLMRoleConfig struct {
	Provider        string  `toml:"provider" validate:"required,oneof=openai azureopenai anthropic gemini"`
	APIKey          string  `toml:"api_key" validate:"required"`
	ModelID         string  `toml:"model_id" validate:"required_unless=Provider azureopenai"`
	AzureEndpoint   string  `toml:"azure_endpoint" validate:"required_if=Provider azureopenai"`
	AzureDeployment string  `toml:"azure_deployment" validate:"required_if=Provider azureopenai"`
	Temperature     float32 `toml:"temperature"`
	MaxTokens       int     `toml:"max_tokens"`
	RateLimit       string  `toml:"rate_limit"` // Duration string, e.g. "1s"
	Timeout         string  `toml:"timeout"`    // Duration string, e.g. "5m"
}

// LLMConfig holds per-role model configuration
type LLMConfig struct {
	Planner  LLMRoleConfig `toml:"planner"`
	Executor LLMRoleConfig `toml:"executor"`
	Thinker  LLMRoleConfig `toml:"thinker"`
}

// WebSocketConfig contains configuration for WebSocket event streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in faber.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:         "info",                     // Info level for production (debug|info|warn|error)
			Format:        "text",                     // Human-readable text format (text|json)
			Output:        []string{"stdout", "file"}, // Log to both console and file
			MinEventLevel: "info",                     // Publish info and above as events to UI
		},
		BackgroundJob: BackgroundJobConfig{
			MaxConcurrency:          4,
			MaxQueueSize:            1000,
			EnablePrioritization:    false,
			PlanTimeoutSeconds:      300,  // 5 minutes for plan generation
			ExecutionTimeoutSeconds: 1800, // 30 minutes for plan execution
			DefaultTimeoutSeconds:   0,    // No timeout unless configured
			DrainTimeoutSeconds:     30,
			RetryPolicy: RetryPolicyConfig{
				Enabled:         true,
				MaxRetries:      3,
				BaseDelayMs:     500,
				MaxDelayMs:      30000,
				BackoffStrategy: "exponential",
				MinJitterFactor: 0.0,
				MaxJitterFactor: 0.2,
			},
		},
		AuditLog: AuditLogConfig{
			RetentionDays:   90,
			CleanupSchedule: "0 3 * * *", // Daily at 03:00
		},
		Webhook: WebhookConfig{
			Secret: "", // Empty disables signature verification
			Label:  "copilot-assisted",
		},
		GitHub: GitHubConfig{
			Token:             "", // Resolved from env or KV store at startup
			BaseURL:           "",
			RequestsPerSecond: 5,
		},
		Container: ContainerConfig{
			Runtime:        "local",
			WorkspaceRoot:  "./data/workspaces",
			KeepWorkspaces: false,
		},
		LLM: LLMConfig{
			Planner: LLMRoleConfig{
				Provider:    string(LLMProviderAnthropic),
				ModelID:     "claude-sonnet-4-5",
				Temperature: 0.2,
				MaxTokens:   8192,
				RateLimit:   "1s",
				Timeout:     "5m",
			},
			Executor: LLMRoleConfig{
				Provider:    string(LLMProviderAnthropic),
				ModelID:     "claude-sonnet-4-5",
				Temperature: 0.0,
				MaxTokens:   8192,
				RateLimit:   "1s",
				Timeout:     "10m",
			},
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
			},
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"job_progress": "1s", // Max 1 progress update per second per job
			},
		},
		Variables: KeysDirConfig{
			Dir: "./", // Default directory for variables.toml file
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// kvStorage can be nil (replacement will be skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
// kvStorage can be nil (replacement will be skipped)
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Perform {key-name} replacement if KV storage is available
	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			} else {
				logger.Info().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
			}
		}
	}

	// Apply environment variables (overrides all file configs and replacements)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: FABER_ENV, fallback: GO_ENV)
	if env := os.Getenv("FABER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("FABER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("FABER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("FABER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("FABER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("FABER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("FABER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEventLevel := os.Getenv("FABER_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}

	// Background job configuration
	if maxConcurrency := os.Getenv("FABER_JOB_MAX_CONCURRENCY"); maxConcurrency != "" {
		if mc, err := strconv.Atoi(maxConcurrency); err == nil {
			config.BackgroundJob.MaxConcurrency = mc
		}
	}
	if maxQueueSize := os.Getenv("FABER_JOB_MAX_QUEUE_SIZE"); maxQueueSize != "" {
		if mq, err := strconv.Atoi(maxQueueSize); err == nil {
			config.BackgroundJob.MaxQueueSize = mq
		}
	}
	if enablePrioritization := os.Getenv("FABER_JOB_ENABLE_PRIORITIZATION"); enablePrioritization != "" {
		if ep, err := strconv.ParseBool(enablePrioritization); err == nil {
			config.BackgroundJob.EnablePrioritization = ep
		}
	}
	if planTimeout := os.Getenv("FABER_JOB_PLAN_TIMEOUT_SECONDS"); planTimeout != "" {
		if pt, err := strconv.Atoi(planTimeout); err == nil {
			config.BackgroundJob.PlanTimeoutSeconds = pt
		}
	}
	if executionTimeout := os.Getenv("FABER_JOB_EXECUTION_TIMEOUT_SECONDS"); executionTimeout != "" {
		if et, err := strconv.Atoi(executionTimeout); err == nil {
			config.BackgroundJob.ExecutionTimeoutSeconds = et
		}
	}
	if retryEnabled := os.Getenv("FABER_JOB_RETRY_ENABLED"); retryEnabled != "" {
		if re, err := strconv.ParseBool(retryEnabled); err == nil {
			config.BackgroundJob.RetryPolicy.Enabled = re
		}
	}
	if maxRetries := os.Getenv("FABER_JOB_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.BackgroundJob.RetryPolicy.MaxRetries = mr
		}
	}
	if backoffStrategy := os.Getenv("FABER_JOB_BACKOFF_STRATEGY"); backoffStrategy != "" {
		config.BackgroundJob.RetryPolicy.BackoffStrategy = backoffStrategy
	}

	// Audit log configuration
	if retentionDays := os.Getenv("FABER_AUDIT_RETENTION_DAYS"); retentionDays != "" {
		if rd, err := strconv.Atoi(retentionDays); err == nil {
			config.AuditLog.RetentionDays = rd
		}
	}
	if cleanupSchedule := os.Getenv("FABER_AUDIT_CLEANUP_SCHEDULE"); cleanupSchedule != "" {
		config.AuditLog.CleanupSchedule = cleanupSchedule
	}

	// Webhook configuration
	if secret := os.Getenv("FABER_WEBHOOK_SECRET"); secret != "" {
		config.Webhook.Secret = secret
	}
	if label := os.Getenv("FABER_WEBHOOK_LABEL"); label != "" {
		config.Webhook.Label = label
	}

	// GitHub configuration
	if token := os.Getenv("FABER_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if baseURL := os.Getenv("FABER_GITHUB_BASE_URL"); baseURL != "" {
		config.GitHub.BaseURL = baseURL
	}
	if rps := os.Getenv("FABER_GITHUB_REQUESTS_PER_SECOND"); rps != "" {
		if r, err := strconv.Atoi(rps); err == nil {
			config.GitHub.RequestsPerSecond = r
		}
	}

	// Container configuration
	if runtime := os.Getenv("FABER_CONTAINER_RUNTIME"); runtime != "" {
		config.Container.Runtime = runtime
	}
	if workspaceRoot := os.Getenv("FABER_CONTAINER_WORKSPACE_ROOT"); workspaceRoot != "" {
		config.Container.WorkspaceRoot = workspaceRoot
	}
	if keepWorkspaces := os.Getenv("FABER_CONTAINER_KEEP_WORKSPACES"); keepWorkspaces != "" {
		if kw, err := strconv.ParseBool(keepWorkspaces); err == nil {
			config.Container.KeepWorkspaces = kw
		}
	}

	// LLM configuration (per-role API keys; standard provider env vars apply via ResolveAPIKey)
	if apiKey := os.Getenv("FABER_LLM_PLANNER_API_KEY"); apiKey != "" {
		config.LLM.Planner.APIKey = apiKey
	}
	if model := os.Getenv("FABER_LLM_PLANNER_MODEL"); model != "" {
		config.LLM.Planner.ModelID = model
	}
	if apiKey := os.Getenv("FABER_LLM_EXECUTOR_API_KEY"); apiKey != "" {
		config.LLM.Executor.APIKey = apiKey
	}
	if model := os.Getenv("FABER_LLM_EXECUTOR_MODEL"); model != "" {
		config.LLM.Executor.ModelID = model
	}
	if apiKey := os.Getenv("FABER_LLM_THINKER_API_KEY"); apiKey != "" {
		config.LLM.Thinker.APIKey = apiKey
	}
	if model := os.Getenv("FABER_LLM_THINKER_MODEL"); model != "" {
		config.LLM.Thinker.ModelID = model
	}

	// WebSocket configuration
	if minLevel := os.Getenv("FABER_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}

	// Variables configuration
	if variablesDir := os.Getenv("FABER_VARIABLES_DIR"); variablesDir != "" {
		config.Variables.Dir = variablesDir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks cross-field configuration rules that TOML parsing
// cannot express. Called once at startup after all overlays applied.
func (c *Config) Validate() error {
	if c.BackgroundJob.MaxConcurrency < 1 {
		return fmt.Errorf("background_job.max_concurrency must be at least 1, got %d", c.BackgroundJob.MaxConcurrency)
	}
	if c.BackgroundJob.MaxQueueSize < 1 {
		return fmt.Errorf("background_job.max_queue_size must be at least 1, got %d", c.BackgroundJob.MaxQueueSize)
	}
	if err := ValidateBackoffStrategy(c.BackgroundJob.RetryPolicy.BackoffStrategy); err != nil {
		return err
	}
	if c.AuditLog.CleanupSchedule != "" {
		if err := ValidateJobSchedule(c.AuditLog.CleanupSchedule); err != nil {
			return fmt.Errorf("audit_log.cleanup_schedule: %w", err)
		}
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	return nil
}

// ValidateBackoffStrategy checks the strategy name is one the retry
// calculator understands
func ValidateBackoffStrategy(strategy string) error {
	switch strategy {
	case "constant", "linear", "exponential":
		return nil
	default:
		return fmt.Errorf("background_job.retry_policy.backoff_strategy must be constant, linear, or exponential, got %q", strategy)
	}
}

// Validate checks the per-role LLM configuration. Planner and Executor
// are required roles; Thinker is validated only when configured.
func (l *LLMConfig) Validate() error {
	validate := validator.New()

	if err := validate.Struct(&l.Planner); err != nil {
		return fmt.Errorf("llm.planner: %w", err)
	}
	if err := validate.Struct(&l.Executor); err != nil {
		return fmt.Errorf("llm.executor: %w", err)
	}
	if l.Thinker.Provider != "" {
		if err := validate.Struct(&l.Thinker); err != nil {
			return fmt.Errorf("llm.thinker: %w", err)
		}
	}
	return nil
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables -> KV store -> config fallback -> error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Map of KV store key names to environment variable names.
	// Environment variables have highest priority.
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key":    {"FABER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key":       {"FABER_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"openai_api_key":       {"FABER_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"azure_openai_api_key": {"FABER_AZURE_OPENAI_API_KEY", "AZURE_OPENAI_API_KEY"},
		"github_token":         {"FABER_GITHUB_TOKEN", "GITHUB_TOKEN"},
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try to resolve from KV store (medium priority - file-based variables)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// ValidateJobSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateJobSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// PlanTimeout returns the generate_plan timeout; zero disables it
func (b *BackgroundJobConfig) PlanTimeout() time.Duration {
	return time.Duration(b.PlanTimeoutSeconds) * time.Second
}

// ExecutionTimeout returns the execute_plan timeout; zero disables it
func (b *BackgroundJobConfig) ExecutionTimeout() time.Duration {
	return time.Duration(b.ExecutionTimeoutSeconds) * time.Second
}

// DefaultTimeout returns the timeout for other job types; zero disables it
func (b *BackgroundJobConfig) DefaultTimeout() time.Duration {
	return time.Duration(b.DefaultTimeoutSeconds) * time.Second
}

// DrainTimeout returns the shutdown drain window
func (b *BackgroundJobConfig) DrainTimeout() time.Duration {
	if b.DrainTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.DrainTimeoutSeconds) * time.Second
}
