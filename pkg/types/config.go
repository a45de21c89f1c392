package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`

	// Backend REST API
	BackendBaseURL     string `envconfig:"BACKEND_BASE_URL"`
	BackendTimeoutSec  uint   `envconfig:"BACKEND_TIMEOUT_SEC" default:"15"`
	ExchangeTimeoutSec uint   `envconfig:"EXCHANGE_TIMEOUT_SEC" default:"20"`

	// Cognito Auth (password sign-in)
	CognitoUserPoolID string `envconfig:"COGNITO_USER_POOL_ID"`
	CognitoClientID   string `envconfig:"COGNITO_CLIENT_ID"`
	CognitoIssuerURL  string `envconfig:"COGNITO_ISSUER_URL"`

	// OIDC (popup sign-in)
	OIDCIssuerURL    string `envconfig:"OIDC_ISSUER_URL"`
	OIDCClientID     string `envconfig:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `envconfig:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `envconfig:"OIDC_REDIRECT_URL" default:"http://localhost:8080/auth/callback"`
	OIDCScopes       string `envconfig:"OIDC_SCOPES" default:"openid email profile"`

	// Session persistence: memory, redis or postgres
	SessionBackend   string `envconfig:"SESSION_BACKEND" default:"memory"`
	SessionKeyPrefix string `envconfig:"SESSION_KEY_PREFIX" default:"pulsepoint:session:"`
	SessionMaxAgeSec int    `envconfig:"SESSION_MAX_AGE_SEC" default:"604800"` // 7 days
	SessionIdleSec   int    `envconfig:"SESSION_IDLE_SEC" default:"1800"`
	GuardWaitMS      int    `envconfig:"GUARD_WAIT_MS" default:"1500"`
	RedisURL         string `envconfig:"REDIS_URL"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`

	// Auth Configuration
	CookieName string `envconfig:"SESSION_COOKIE_NAME" default:"pp_sid"`
	// Cookie encryption keys (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes
	CookieInsecure bool   `envconfig:"COOKIE_INSECURE" default:"false"`

	// Login and register attempts per minute per client address
	AuthRatePerMinute int `envconfig:"AUTH_RATE_PER_MINUTE" default:"20"`

	// Payments
	StripeSecretKey string `envconfig:"STRIPE_SECRET_KEY"`
	StripeCurrency  string `envconfig:"STRIPE_CURRENCY" default:"usd"`

	// Thumbnails and avatars
	S3BucketName    string `envconfig:"S3_BUCKET_NAME"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`
}
