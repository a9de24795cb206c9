package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Model struct {
		URL            string `mapstructure:"url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"model"`

	Analyzer struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"analyzer"`

	VCS struct {
		URL   string `mapstructure:"url"`
		Token string `mapstructure:"token"`
	} `mapstructure:"vcs"`

	Orchestrator struct {
		PollIntervalSeconds   int    `mapstructure:"poll_interval_seconds"`
		MaxPolls              int    `mapstructure:"max_polls"`
		HealingBudget         int    `mapstructure:"healing_budget"`
		LearnedCandidateLimit int    `mapstructure:"learned_candidate_limit"`
		CallbackURL           string `mapstructure:"callback_url"`
		RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	} `mapstructure:"orchestrator"`

	Auth struct {
		OktaDomain   string `mapstructure:"okta_domain"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// PollInterval returns the configured monitor poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Orchestrator.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the outbound request timeout. It must stay shorter
// than the poll interval so polls never overlap.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Orchestrator.RequestTimeoutSeconds) * time.Second
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", "DEV")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("model.timeout_seconds", 120)
	viper.SetDefault("orchestrator.poll_interval_seconds", 30)
	viper.SetDefault("orchestrator.max_polls", 30)
	viper.SetDefault("orchestrator.healing_budget", 10)
	viper.SetDefault("orchestrator.learned_candidate_limit", 10)
	viper.SetDefault("orchestrator.request_timeout_seconds", 10)

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus environment apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)

	return &config, nil
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact. This allows users to paste the full URL from the Okta admin
// console without worrying about double prefixes.
func normalizeOktaIssuer(input string) string {
	iss := strings.TrimSpace(input)
	if strings.HasSuffix(iss, "/") {
		iss = strings.TrimRight(iss, "/")
	}
	return iss
}
