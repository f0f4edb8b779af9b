package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config represents the main application configuration
type Config struct {
	Database  Database  `json:"database" mapstructure:"database"`
	OpenAI    OpenAI    `json:"openai" mapstructure:"openai"`
	Assistant Assistant `json:"assistant" mapstructure:"assistant"`
	Scheduler Scheduler `json:"scheduler" mapstructure:"scheduler"`
	Server    Server    `json:"server" mapstructure:"server"`
	JWT       JWT       `json:"jwt" mapstructure:"jwt"`
	HTTP      HTTP      `json:"http" mapstructure:"http"`
}

// Database represents database configuration
type Database struct {
	Driver          string        `json:"driver" mapstructure:"driver"`
	Path            string        `json:"path" mapstructure:"path"`
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	User            string        `json:"user" mapstructure:"user"`
	Password        string        `json:"password" mapstructure:"password"`
	DBName          string        `json:"dbname" mapstructure:"dbname"`
	SSLMode         string        `json:"sslmode" mapstructure:"sslmode"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenAI represents OpenAI chat completion configuration.
// An empty APIKey switches the assistant to rule-based mode.
type OpenAI struct {
	APIKey      string        `json:"api_key" mapstructure:"api_key"`
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	Model       string        `json:"model" mapstructure:"model"`
	MaxTokens   int           `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32       `json:"temperature" mapstructure:"temperature"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Assistant holds conversation and parsing settings
type Assistant struct {
	HistoryLimit int    `json:"history_limit" mapstructure:"history_limit"`
	TimeZone     string `json:"timezone" mapstructure:"timezone"`
}

// Scheduler holds reminder scheduler settings
type Scheduler struct {
	RestoreOnStart bool `json:"restore_on_start" mapstructure:"restore_on_start"`
}

// Server represents server configuration
type Server struct {
	LogLevel string `json:"log_level" mapstructure:"log_level"`
	Debug    bool   `json:"debug" mapstructure:"debug"`
}

// JWT represents JWT configuration
type JWT struct {
	Secret     string        `json:"secret" mapstructure:"secret"`
	Expiry     time.Duration `json:"expiry" mapstructure:"expiry"`
	CookieName string        `json:"cookie_name" mapstructure:"cookie_name"`
}

// HTTP represents HTTP server configuration
type HTTP struct {
	Port         int      `json:"port" mapstructure:"port"`
	AllowOrigins []string `json:"allow_origins" mapstructure:"allow_origins"`
}

// NewDefault returns a Config instance with default values
func NewDefault() *Config {
	return &Config{
		Database: Database{
			Driver:          DriverPostgres,
			Path:            "plansmart.db",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "",
			DBName:          "plansmart",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
		},
		OpenAI: OpenAI{
			APIKey:      "",
			Model:       "gpt-3.5-turbo",
			MaxTokens:   500,
			Temperature: 0.7,
			MaxRetries:  3,
			Timeout:     30 * time.Second,
		},
		Assistant: Assistant{
			HistoryLimit: 10,
			TimeZone:     "Local",
		},
		Scheduler: Scheduler{
			RestoreOnStart: true,
		},
		Server: Server{
			LogLevel: "info",
			Debug:    false,
		},
		JWT: JWT{
			Secret:     "change-me-in-production",
			Expiry:     24 * time.Hour,
			CookieName: "plansmart_session",
		},
		HTTP: HTTP{
			Port:         8082,
			AllowOrigins: []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:5500"},
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("database port must be between 1 and 65535")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database name is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be greater than 0")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxConnections {
		return fmt.Errorf("max idle connections cannot exceed max connections")
	}

	// API key is optional, the assistant runs rule-based without it
	if c.OpenAI.Model == "" {
		return fmt.Errorf("OpenAI model is required")
	}
	if c.OpenAI.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.OpenAI.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.Assistant.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be greater than 0")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone: %s", c.Assistant.TimeZone)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("JWT expiry must be positive")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	return nil
}

// Location resolves the assistant time zone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Assistant.TimeZone == "" || c.Assistant.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Assistant.TimeZone)
}

// LLMEnabled reports whether an OpenAI key is configured
func (c *Config) LLMEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// DatabaseURL constructs a PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	params := url.Values{}
	params.Set("sslmode", c.Database.SSLMode)

	var userInfo *url.Userinfo
	if c.Database.Password == "" {
		userInfo = url.User(c.Database.User)
	} else {
		userInfo = url.UserPassword(c.Database.User, c.Database.Password)
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     c.Database.DBName,
		RawQuery: params.Encode(),
	}

	return u.String()
}
