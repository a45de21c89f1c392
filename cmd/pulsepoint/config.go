package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"pulsepoint/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	sessionBackendMemory   = "memory"
	sessionBackendRedis    = "redis"
	sessionBackendPostgres = "postgres"
)

func loadConfig() (*types.Config, error) {
	// A .env file is optional outside development.
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	c := new(types.Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if c.BackendBaseURL == "" {
		return nil, fmt.Errorf("set BACKEND_BASE_URL")
	}

	if c.CookieHashKey == "" {
		return nil, fmt.Errorf("set COOKIE_HASH_KEY")
	}
	if _, err := base64.StdEncoding.DecodeString(c.CookieHashKey); err != nil {
		return nil, fmt.Errorf("COOKIE_HASH_KEY must be base64: %w", err)
	}

	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	switch c.SessionBackend {
	case "":
		c.SessionBackend = sessionBackendMemory
	case sessionBackendMemory:
	case sessionBackendRedis:
		if c.RedisURL == "" {
			return nil, fmt.Errorf("set REDIS_URL when SESSION_BACKEND=redis")
		}
	case sessionBackendPostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("set DATABASE_URL when SESSION_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	if c.CognitoIssuerURL == "" && c.CognitoUserPoolID != "" {
		region, _, ok := strings.Cut(c.CognitoUserPoolID, "_")
		if ok {
			c.CognitoIssuerURL = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, c.CognitoUserPoolID)
		}
	}

	// Password sign-in verifies every ID token, so a client id is useless
	// without an issuer to verify against.
	if c.CognitoClientID != "" && c.CognitoIssuerURL == "" {
		return nil, fmt.Errorf("set COGNITO_USER_POOL_ID or COGNITO_ISSUER_URL when COGNITO_CLIENT_ID is set")
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 10
	}

	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 15
	}

	return c, nil
}

func newLogger(c *types.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logger.WithField("log_level", c.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	config, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}
