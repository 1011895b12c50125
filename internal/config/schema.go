package config

import "fmt"

// Config holds sitebookify configuration.
// Stored at: config.yaml in the working directory or ~/.sitebookify.
type Config struct {
	Server  ServerCfg  `mapstructure:"server" yaml:"server"`
	Jobs    JobsCfg    `mapstructure:"jobs" yaml:"jobs"`
	OpenAI  OpenAICfg  `mapstructure:"openai" yaml:"openai"`
	Rewrite RewriteCfg `mapstructure:"rewrite" yaml:"rewrite"`
	Command CommandCfg `mapstructure:"command" yaml:"command"`
}

// ServerCfg configures the HTTP listener.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// PublicBaseURL is the externally reachable base used in download URLs.
	// Empty means http://{host}:{port}.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

// JobsCfg configures job execution.
type JobsCfg struct {
	ExecutionMode  string `mapstructure:"execution_mode" yaml:"execution_mode"`   // "inprocess" or "worker"
	MaxConcurrency int    `mapstructure:"max_concurrency" yaml:"max_concurrency"` // Queue permits
	WorkerBaseURL  string `mapstructure:"worker_base_url" yaml:"worker_base_url"` // Worker mode target
	WorkerToken    string `mapstructure:"worker_token" yaml:"worker_token"`       // Bearer token (supports ${ENV_VAR} syntax)
	DownloadAssets bool   `mapstructure:"download_assets" yaml:"download_assets"`
}

// OpenAICfg configures the LLM backend for toc and render engines.
type OpenAICfg struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"` // Optional override
}

// RewriteCfg configures the chapter rewrite protocol.
type RewriteCfg struct {
	MaxChars    int    `mapstructure:"max_chars" yaml:"max_chars"`
	Retries     int    `mapstructure:"retries" yaml:"retries"`
	Policy      string `mapstructure:"policy" yaml:"policy"` // "strict" or "lenient"
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// CommandCfg configures the subprocess engine backend.
type CommandCfg struct {
	Bin  string   `mapstructure:"bin" yaml:"bin"`
	Args []string `mapstructure:"args" yaml:"args"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Jobs: JobsCfg{
			ExecutionMode:  "inprocess",
			MaxConcurrency: 2,
			DownloadAssets: true,
		},
		OpenAI: OpenAICfg{
			APIKey: "${OPENAI_API_KEY}",
			Model:  "gpt-4o-mini",
		},
		Rewrite: RewriteCfg{
			MaxChars:    6000,
			Retries:     2,
			Policy:      "strict",
			Concurrency: 2,
		},
	}
}

// ListenAddr returns the host:port pair the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BaseURL returns the base URL advertised in download links.
func (c *Config) BaseURL() string {
	if c.Server.PublicBaseURL != "" {
		return c.Server.PublicBaseURL
	}
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}
