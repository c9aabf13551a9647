package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "EIOS_CONFIG"

	dbPathEnv       = "EIOS_DB_PATH"
	baseURLEnv      = "EIOS_BASE_URL"
	tokenURLEnv     = "EIOS_TOKEN_URL"
	tenantIDEnv     = "WHO_TENANT_ID"
	clientIDEnv     = "CONSUMER_CLIENT_ID"
	clientSecretEnv = "CONSUMER_SECRET"
	scopeEnv        = "EIOS_CLIENT_ID_SCOPE"
	fetchWindowEnv  = "FETCH_DURATION_HOURS"
	aiProviderEnv   = "AI_PROVIDER"
	aiModelEnv      = "AI_MODEL"

	defaultBaseURL     = "https://eios.who.int/portal/api/api/v1.0"
	defaultProvider    = "openai"
	defaultModel       = "gpt-4"
	defaultTag         = "ephem emro"
	defaultFetchWindow = 5
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	EIOS      EIOSConfig      `yaml:"eios"`
	AI        AIConfig        `yaml:"ai"`
}

// LoggingConfig controls the console logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines how often ingestion cycles run.
type SchedulerConfig struct {
	IntervalMinutes int `yaml:"intervalMinutes"`
}

// EIOSConfig wires the upstream content service.
type EIOSConfig struct {
	BaseURL          string   `yaml:"baseUrl"`
	TokenURL         string   `yaml:"tokenUrl"`
	TenantID         string   `yaml:"tenantId"`
	ClientID         string   `yaml:"clientId"`
	ClientSecret     string   `yaml:"clientSecret"`
	Scope            string   `yaml:"scope"`
	FetchWindowHours int      `yaml:"fetchWindowHours"`
	Tags             []string `yaml:"tags"`
}

// ResolveTokenURL prefers an explicit token endpoint over the tenant-derived
// Azure AD one.
func (e EIOSConfig) ResolveTokenURL() string {
	if e.TokenURL != "" {
		return e.TokenURL
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", e.TenantID)
}

// AIConfig selects the language-model provider and prompt.
type AIConfig struct {
	Provider         string                    `yaml:"provider"`
	Model            string                    `yaml:"model"`
	Prompt           string                    `yaml:"prompt"`
	RateLimitSeconds int                       `yaml:"rateLimitSeconds"`
	Providers        map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds per-provider credentials and endpoint.
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

// Active resolves the provider entry for the configured provider name,
// falling back to openai for unknown names.
func (a AIConfig) Active() ProviderConfig {
	if p, ok := a.Providers[strings.ToLower(a.Provider)]; ok {
		return p
	}
	return a.Providers[defaultProvider]
}

// Load builds the configuration in precedence order: hard-coded fallbacks,
// then environment defaults, then the YAML file named by EIOS_CONFIG.
// Database-stored overrides are applied afterwards via ApplyStoredOverrides,
// once a store connection exists.
func Load() Config {
	cfg := defaultConfig()
	cfg.applyEnvDefaults()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	if len(cfg.EIOS.Tags) == 0 {
		cfg.EIOS.Tags = []string{defaultTag}
	}

	return cfg
}

func (c *Config) applyEnvDefaults() {
	if v := os.Getenv(dbPathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(baseURLEnv); v != "" {
		c.EIOS.BaseURL = v
	}
	if v := os.Getenv(tokenURLEnv); v != "" {
		c.EIOS.TokenURL = v
	}
	if v := os.Getenv(tenantIDEnv); v != "" {
		c.EIOS.TenantID = v
	}
	if v := os.Getenv(clientIDEnv); v != "" {
		c.EIOS.ClientID = v
	}
	if v := os.Getenv(clientSecretEnv); v != "" {
		c.EIOS.ClientSecret = v
	}
	if v := os.Getenv(scopeEnv); v != "" {
		c.EIOS.Scope = v
	}
	if v := os.Getenv(fetchWindowEnv); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			c.EIOS.FetchWindowHours = hours
		}
	}
	if v := os.Getenv(aiProviderEnv); v != "" {
		c.AI.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(aiModelEnv); v != "" {
		c.AI.Model = v
	}

	for name, envPrefix := range providerEnvPrefixes {
		p := c.AI.Providers[name]
		if v := os.Getenv(envPrefix + "_API_KEY"); v != "" {
			p.APIKey = v
		}
		if v := os.Getenv(envPrefix + "_API_BASE"); v != "" {
			p.BaseURL = v
		}
		c.AI.Providers[name] = p
	}
}

var providerEnvPrefixes = map[string]string{
	"openai":   "OPENAI",
	"deepseek": "DEEPSEEK",
	"local":    "LOCAL_LLM",
}

// ApplyStoredOverrides applies durable operator overrides from the
// user_config table. Stored values win over both environment and file.
func (c *Config) ApplyStoredOverrides(values map[string]string) {
	if v := values["tags"]; v != "" {
		var tags []string
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			c.EIOS.Tags = tags
		}
	}
	if v := values["AI_PROVIDER"]; v != "" {
		c.AI.Provider = strings.ToLower(v)
	}
	if v := values["AI_MODEL"]; v != "" {
		c.AI.Model = v
	}
	if v := values["risk_evaluation_prompt"]; v != "" {
		c.AI.Prompt = v
	}

	for name, envPrefix := range providerEnvPrefixes {
		p := c.AI.Providers[name]
		if v := values[envPrefix+"_API_KEY"]; v != "" {
			p.APIKey = v
		}
		if v := values[envPrefix+"_API_BASE"]; v != "" {
			p.BaseURL = v
		}
		c.AI.Providers[name] = p
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Database.Path != "" {
		base.Database.Path = override.Database.Path
	}
	if override.Scheduler.IntervalMinutes > 0 {
		base.Scheduler.IntervalMinutes = override.Scheduler.IntervalMinutes
	}

	if override.EIOS.BaseURL != "" {
		base.EIOS.BaseURL = override.EIOS.BaseURL
	}
	if override.EIOS.TokenURL != "" {
		base.EIOS.TokenURL = override.EIOS.TokenURL
	}
	if override.EIOS.TenantID != "" {
		base.EIOS.TenantID = override.EIOS.TenantID
	}
	if override.EIOS.ClientID != "" {
		base.EIOS.ClientID = override.EIOS.ClientID
	}
	if override.EIOS.ClientSecret != "" {
		base.EIOS.ClientSecret = override.EIOS.ClientSecret
	}
	if override.EIOS.Scope != "" {
		base.EIOS.Scope = override.EIOS.Scope
	}
	if override.EIOS.FetchWindowHours > 0 {
		base.EIOS.FetchWindowHours = override.EIOS.FetchWindowHours
	}
	if len(override.EIOS.Tags) > 0 {
		base.EIOS.Tags = override.EIOS.Tags
	}

	if override.AI.Provider != "" {
		base.AI.Provider = strings.ToLower(override.AI.Provider)
	}
	if override.AI.Model != "" {
		base.AI.Model = override.AI.Model
	}
	if override.AI.Prompt != "" {
		base.AI.Prompt = override.AI.Prompt
	}
	if override.AI.RateLimitSeconds > 0 {
		base.AI.RateLimitSeconds = override.AI.RateLimitSeconds
	}
	for name, p := range override.AI.Providers {
		merged := base.AI.Providers[name]
		if p.APIKey != "" {
			merged.APIKey = p.APIKey
		}
		if p.BaseURL != "" {
			merged.BaseURL = p.BaseURL
		}
		base.AI.Providers[name] = merged
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Database:  DatabaseConfig{Path: "eios.db"},
		Scheduler: SchedulerConfig{IntervalMinutes: 60},
		EIOS: EIOSConfig{
			BaseURL:          defaultBaseURL,
			FetchWindowHours: defaultFetchWindow,
		},
		AI: AIConfig{
			Provider:         defaultProvider,
			Model:            defaultModel,
			RateLimitSeconds: 2,
			Providers: map[string]ProviderConfig{
				"openai":   {BaseURL: "https://api.openai.com/v1"},
				"deepseek": {BaseURL: "https://api.deepseek.com/v1"},
				"local":    {BaseURL: "http://localhost:8000"},
			},
		},
	}
}
