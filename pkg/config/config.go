package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// LLM providers accepted in LLM_PROVIDER.
const (
	LLMProviderAzure     = "azure"
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
	LLMProviderNone      = "none"
)

// DefaultConfigFile is read when present; otherwise only the environment is used.
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for ekaya-reports.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"SERVER_PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	SQLServer SQLServerConfig `yaml:"sqlserver"`
	LLM       LLMConfig       `yaml:"llm"`
	SSRS      SSRSConfig      `yaml:"ssrs"`
	Report    ReportConfig    `yaml:"report"`
}

// SQLServerConfig holds the customer SQL Server connection. The database is
// chosen per request.
type SQLServerConfig struct {
	Host                   string `yaml:"host" env:"SQLSERVER_HOST" env-default:""`
	Port                   int    `yaml:"port" env:"SQLSERVER_PORT" env-default:"1433"`
	User                   string `yaml:"user" env:"SQLSERVER_USER" env-default:""`
	Password               string `yaml:"-" env:"SQLSERVER_PASSWORD"` // Secret - not in YAML
	Encrypt                bool   `yaml:"encrypt" env:"SQLSERVER_ENCRYPT" env-default:"false"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"SQLSERVER_TRUST_SERVER_CERTIFICATE" env-default:"true"`
	ConnectionTimeout      int    `yaml:"connection_timeout" env:"SQLSERVER_CONNECTION_TIMEOUT" env-default:"10"` // seconds
}

// IsConfigured returns true when enough is set to open a connection.
func (c *SQLServerConfig) IsConfigured() bool {
	return c.Host != "" && c.User != ""
}

// LLMConfig selects and configures the language model used for intent
// parsing, term reranking and SQL generation.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"azure"`

	AzureEndpoint   string `yaml:"azure_endpoint" env:"AZURE_OPENAI_ENDPOINT" env-default:""`
	AzureDeployment string `yaml:"azure_deployment" env:"AZURE_OPENAI_DEPLOYMENT" env-default:""`
	AzureAPIVersion string `yaml:"azure_api_version" env:"AZURE_OPENAI_API_VERSION" env-default:"2024-06-01"`
	AzureAPIKey     string `yaml:"-" env:"AZURE_OPENAI_API_KEY"` // Secret - not in YAML

	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:""`
	OpenAIModel   string `yaml:"openai_model" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	OpenAIAPIKey  string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML

	AnthropicModel  string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL" env-default:"claude-3-5-haiku-latest"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML

	TimeoutSeconds int `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
}

// IsConfigured returns true if the selected provider has its credentials.
func (c *LLMConfig) IsConfigured() bool {
	switch strings.ToLower(c.Provider) {
	case LLMProviderAzure:
		return c.AzureEndpoint != "" && c.AzureDeployment != "" && c.AzureAPIKey != ""
	case LLMProviderOpenAI:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	case LLMProviderAnthropic:
		return c.AnthropicAPIKey != "" && c.AnthropicModel != ""
	default:
		return false
	}
}

// Model returns the deployment or model name of the selected provider.
func (c *LLMConfig) Model() string {
	switch strings.ToLower(c.Provider) {
	case LLMProviderAzure:
		return c.AzureDeployment
	case LLMProviderOpenAI:
		return c.OpenAIModel
	case LLMProviderAnthropic:
		return c.AnthropicModel
	default:
		return ""
	}
}

// SSRSConfig holds the report server endpoints and credentials used for publishing.
type SSRSConfig struct {
	SOAPURL              string `yaml:"soap_url" env:"SSRS_SOAP_URL" env-default:""`
	RESTURL              string `yaml:"rest_url" env:"SSRS_REST_URL" env-default:""` // Derived from SOAPURL if empty
	RenderBase           string `yaml:"render_base" env:"SSRS_RENDER_BASE" env-default:""`
	ReportFolder         string `yaml:"report_folder" env:"SSRS_REPORT_FOLDER" env-default:"/AutoReports"`
	SharedDataSourcePath string `yaml:"shared_ds_path" env:"SHARED_DS_PATH" env-default:"/_Shared/MainDS"`
	Domain               string `yaml:"domain" env:"SSRS_DOMAIN" env-default:""`
	User                 string `yaml:"user" env:"SSRS_USER" env-default:""`
	Password             string `yaml:"-" env:"SSRS_PASSWORD"` // Secret - not in YAML
	TimeoutSeconds       int    `yaml:"timeout_seconds" env:"SSRS_TIMEOUT_SECONDS" env-default:"30"`
}

// IsConfigured returns true if a SOAP endpoint is set.
func (c *SSRSConfig) IsConfigured() bool {
	return c.SOAPURL != ""
}

// ReportConfig holds defaults for locally generated report files.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" env:"RDL_OUTPUT_DIR" env-default:"./reports"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// Without a config.yaml only environment variables (and defaults) are used.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.SQLServer.Host = ResolveHostForDocker(cfg.SQLServer.Host)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	switch c.LLM.Provider {
	case LLMProviderAzure, LLMProviderOpenAI, LLMProviderAnthropic, LLMProviderNone, "":
	default:
		return fmt.Errorf("unknown LLM provider %q (want azure, openai, anthropic or none)", c.LLM.Provider)
	}

	if c.SQLServer.Port <= 0 || c.SQLServer.Port > 65535 {
		return fmt.Errorf("invalid SQL Server port: %d", c.SQLServer.Port)
	}
	if c.SQLServer.ConnectionTimeout < 0 {
		return fmt.Errorf("invalid SQL Server connection timeout: %d", c.SQLServer.ConnectionTimeout)
	}
	if c.SSRS.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid SSRS timeout: %d", c.SSRS.TimeoutSeconds)
	}

	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}
