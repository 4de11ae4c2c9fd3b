package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/authgate/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultBaseURL      = "http://localhost:8000"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the authgate service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Token signing uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// SMTP relay in host:port form. Empty means emails are logged instead of sent
	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	// Frontend base the email links point at
	BaseURL string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
		BaseURL:     defaultBaseURL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":   setString(&c.ListenAddr),
		"DATABASE_URI":  setString(&c.DatabaseDSN),
		"SECRET_KEY":    setString(&c.SecretKey),
		"LOG_LEVEL":     setString(&c.LogLevel),
		"ENVIRONMENT":   setString(&c.Environment),
		"SMTP_ADDRESS":  setString(&c.SMTPAddr),
		"SMTP_FROM":     setString(&c.SMTPFrom),
		"SMTP_USERNAME": setString(&c.SMTPUsername),
		"SMTP_PASSWORD": setString(&c.SMTPPassword),
		"BASE_URL":      setString(&c.BaseURL),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authgate", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.SMTPAddr, "smtp-address", c.SMTPAddr, "SMTP relay address (host:port)")
	fs.StringVar(&c.SMTPFrom, "smtp-from", c.SMTPFrom, "Sender address for outgoing emails")
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "Frontend base URL used in email links")

	return fs.Parse(args)
}
