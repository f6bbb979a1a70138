package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | pgx | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	GenerationConfig struct {
		MaxDays    int     // longest template range that can be expanded
		SampleSize int     // dates returned by previews
		RateLimit  float64 // generation requests per second, per client
	}

	SchedulerConfig struct {
		Spec     string // cron spec; empty disables auto generation
		Timezone string
	}

	Config struct {
		Env              string // DEV | TEST | QA | PROD
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		WorkDir          string
		DefaultFromEmail mail.Address
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		Server           ServerConfig
		Database         DatabaseConfig
		Generation       GenerationConfig
		Scheduler        SchedulerConfig
	}
)

// Location loads the scheduler time zone (UTC when unset).
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	return loc, errors.Wrapf(err, "loading timezone %q", c.Timezone)
}

// Address returns the "host:port" of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c DatabaseConfig) IsPostgres() bool {
	return c.Engine == "postgres" || c.Engine == "pgx"
}

// NewConfig loads config/.env.<env> when present, then reads the environment.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("app_name", "Ratiba")
	v.SetDefault("build", "develop")
	v.SetDefault("default_from_email", "Ratiba <noreply@localhost>")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("server_host", "0.0.0.0:8000")
	v.SetDefault("server_debug_host", "0.0.0.0:4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "ratiba")
	v.SetDefault("db_user", "ratiba")
	v.SetDefault("db_password", "ratiba")
	v.SetDefault("db_admin_user", "postgres")
	v.SetDefault("db_admin_password", "postgres")
	v.SetDefault("db_disable_tls", false)
	v.SetDefault("generation_max_days", 366)
	v.SetDefault("generation_sample_size", 5)
	v.SetDefault("generation_rate_limit", 2.0)
	v.SetDefault("scheduler_spec", "")
	v.SetDefault("scheduler_timezone", "UTC")

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("default_from_email"))
	if err != nil {
		log.Fatalf("config.DefaultFromEmail: %v", err)
	}

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		AppName:          v.GetString("app_name"),
		Build:            v.GetString("build"),
		WorkDir:          wd,
		DefaultFromEmail: *from,
		FrontendBaseURL:  v.GetString("frontend_base_url"),
		RollbarToken:     v.GetString("rollbar_token"),
		SendgridApiKey:   v.GetString("sendgrid_api_key"),
		Server: ServerConfig{
			Host:            v.GetString("server_host"),
			DebugHost:       v.GetString("server_debug_host"),
			ShutdownTimeout: v.GetDuration("server_shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetString("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_admin_user"),
			AdminPassword: v.GetString("db_admin_password"),
			DisableTLS:    v.GetBool("db_disable_tls"),
		},
		Generation: GenerationConfig{
			MaxDays:    v.GetInt("generation_max_days"),
			SampleSize: v.GetInt("generation_sample_size"),
			RateLimit:  v.GetFloat64("generation_rate_limit"),
		},
		Scheduler: SchedulerConfig{
			Spec:     v.GetString("scheduler_spec"),
			Timezone: v.GetString("scheduler_timezone"),
		},
	}
}

// NewTestConfig returns the configuration used by tests: debug off, in-memory sqlite.
func NewTestConfig() *Config {
	from := mail.Address{Name: "Ratiba", Address: "noreply@localhost"}
	return &Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Ratiba",
		Build:            "test",
		DefaultFromEmail: from,
		FrontendBaseURL:  "http://localhost:3000",
		Server:           ServerConfig{ShutdownTimeout: time.Second},
		Database:         DatabaseConfig{Engine: "sqlite", Name: ":memory:"},
		Generation:       GenerationConfig{MaxDays: 366, SampleSize: 5, RateLimit: 1000},
		Scheduler:        SchedulerConfig{Timezone: "UTC"},
	}
}
