package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BACKEND_BASE_URL", "http://localhost:5000")
	t.Setenv("COOKIE_HASH_KEY", "c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LWtleQ==")
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("COGNITO_USER_POOL_ID", "")
	t.Setenv("COGNITO_ISSUER_URL", "")
	t.Setenv("COGNITO_CLIENT_ID", "")
}

func TestLoadConfigRejectsClientIDWithoutIssuer(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("COGNITO_CLIENT_ID", "client-1")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COGNITO_CLIENT_ID")
}

func TestLoadConfigDerivesIssuerFromPool(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("COGNITO_CLIENT_ID", "client-1")
	t.Setenv("COGNITO_USER_POOL_ID", "us-east-1_abc123")

	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_abc123", c.CognitoIssuerURL)
}

func TestLoadConfigWithoutCognito(t *testing.T) {
	setBaseEnv(t)

	c, err := loadConfig()
	require.NoError(t, err)
	assert.Empty(t, c.CognitoIssuerURL)
}
