package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	OpenAI struct {
		APIKey          string `mapstructure:"api_key"`
		BaseURL         string `mapstructure:"base_url"`
		AgentModel      string `mapstructure:"agent_model"`
		ClassifierModel string `mapstructure:"classifier_model"`
		GeneratorModel  string `mapstructure:"generator_model"`
	} `mapstructure:"openai"`

	Workflow struct {
		GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
		ClassifierTimeout time.Duration `mapstructure:"classifier_timeout"`
		AgentTimeout      time.Duration `mapstructure:"agent_timeout"`
		SessionTTL        time.Duration `mapstructure:"session_ttl"`
		// MaxCorrections caps the update sub-loop at one question.
		// 0 leaves the loop unbounded.
		MaxCorrections int `mapstructure:"max_corrections"`
	} `mapstructure:"workflow"`

	Auth struct {
		Enable       bool   `mapstructure:"enable"`
		Issuer       string `mapstructure:"issuer"`
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

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Auth.Issuer = normalizeIssuer(config.Auth.Issuer)

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "dev")
	viper.SetDefault("server.addr", ":8002")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("openai.agent_model", "gpt-4o-mini")
	viper.SetDefault("openai.classifier_model", "gpt-4o-mini")
	viper.SetDefault("openai.generator_model", "gpt-4o-mini")
	viper.SetDefault("workflow.generation_timeout", 25*time.Second)
	viper.SetDefault("workflow.classifier_timeout", 10*time.Second)
	viper.SetDefault("workflow.agent_timeout", 60*time.Second)
	viper.SetDefault("workflow.session_ttl", 12*time.Hour)
	viper.SetDefault("workflow.max_corrections", 0)
}

// normalizeIssuer ensures the provided OIDC issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact, so users can paste the full URL from their IdP console.
func normalizeIssuer(input string) string {
	iss := strings.TrimSpace(input)
	if strings.HasSuffix(iss, "/") {
		iss = strings.TrimRight(iss, "/")
	}
	return iss
}
