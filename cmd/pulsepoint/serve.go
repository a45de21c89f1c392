package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pulsepoint/internal/backend"
	"pulsepoint/internal/db"
	"pulsepoint/internal/identity"
	"pulsepoint/internal/metrics"
	"pulsepoint/internal/payment"
	"pulsepoint/internal/server"
	"pulsepoint/internal/session"
	"pulsepoint/internal/storage"
	"pulsepoint/internal/store"
	"pulsepoint/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP server",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(config)

	awsConfig, err := loadAWSConfig(ctx)
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if config.DatabaseURL != "" {
		pool, err = db.Connect(ctx, config.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	persister, err := newPersister(ctx, config, pool, logger)
	if err != nil {
		return err
	}

	var events session.EventRecorder
	if pool != nil {
		events = store.NewSessionEventRepository(pool)
	}

	api, err := backend.New(config.BackendBaseURL, &http.Client{
		Timeout: time.Duration(config.BackendTimeoutSec) * time.Second,
	}, logger)
	if err != nil {
		return err
	}

	adapter, err := newIdentity(ctx, config, awsConfig, logger)
	if err != nil {
		return err
	}

	exchangeTimeout := time.Duration(config.ExchangeTimeoutSec) * time.Second
	exchanger := session.NewExchanger(ctx, session.NewBackend(api), exchangeTimeout, logger)

	manager := session.NewManager(session.ManagerOptions{
		Persister:      persister,
		Events:         events,
		Exchanger:      exchanger,
		Identity:       adapter,
		Logger:         logger,
		IdleTimeout:    time.Duration(config.SessionIdleSec) * time.Second,
		RestoreTimeout: exchangeTimeout,
	})

	registry, err := metrics.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	opts := server.Options{
		Config:    config,
		Logger:    logger,
		Sessions:  manager,
		Exchanger: exchanger,
		Identity:  adapter,
		Backend:   api,
		Registry:  registry,
	}

	if config.StripeSecretKey != "" {
		fetcher, err := payment.NewStripeFetcher(config.StripeSecretKey)
		if err != nil {
			return err
		}
		opts.Payments = payment.NewVerifier(fetcher, config.StripeCurrency)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, funding records are disabled")
	}

	if config.S3BucketName != "" {
		opts.Images = storage.NewImageStorage(s3.NewFromConfig(awsConfig), config.S3BucketName, config.S3PublicBaseURL)
	} else {
		logger.Warn("S3_BUCKET_NAME not set, image uploads are disabled")
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Run(gctx)
	})

	if repo, ok := persister.(*store.BrowserSessionRepository); ok {
		g.Go(func() error {
			pruneSessions(gctx, repo, time.Duration(config.SessionMaxAgeSec)*time.Second, logger)
			return nil
		})
	}

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"port":            config.ServerPort,
			"session_backend": config.SessionBackend,
		}).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Stop(shutdownCtx)
	})

	return g.Wait()
}

func newPersister(ctx context.Context, config *types.Config, pool *pgxpool.Pool, logger *logrus.Logger) (session.Persister, error) {
	ttl := time.Duration(config.SessionMaxAgeSec) * time.Second

	switch config.SessionBackend {
	case sessionBackendRedis:
		client, err := store.ConnectRedis(ctx, config.RedisURL)
		if err != nil {
			return nil, err
		}
		return store.NewRedisPersister(client, config.SessionKeyPrefix, ttl), nil
	case sessionBackendPostgres:
		if err := db.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return store.NewBrowserSessionRepository(pool), nil
	default:
		logger.Warn("sessions are kept in memory and will not survive a restart")
		return session.NewMemoryPersister(config.SessionKeyPrefix), nil
	}
}

func newIdentity(ctx context.Context, config *types.Config, awsConfig aws.Config, logger *logrus.Logger) (*identity.Adapter, error) {
	opts := identity.Options{
		Cognito:  cognitoidentityprovider.NewFromConfig(awsConfig),
		ClientID: config.CognitoClientID,
		Logger:   logger,
	}

	if config.CognitoIssuerURL != "" {
		keys, err := identity.NewCachedKeys(ctx, config.CognitoIssuerURL)
		if err != nil {
			return nil, err
		}
		opts.Verifier = identity.NewJWTVerifier(keys, config.CognitoIssuerURL, config.CognitoClientID)
	}

	if config.OIDCIssuerURL != "" {
		flow, err := identity.NewOIDCFlow(ctx, identity.OIDCConfig{
			IssuerURL:    config.OIDCIssuerURL,
			ClientID:     config.OIDCClientID,
			ClientSecret: config.OIDCClientSecret,
			RedirectURL:  config.OIDCRedirectURL,
			Scopes:       strings.Fields(config.OIDCScopes),
		})
		if err != nil {
			return nil, err
		}
		opts.Popup = flow
	} else {
		logger.Info("OIDC_ISSUER_URL not set, popup sign-in is disabled")
	}

	return identity.New(opts), nil
}

// pruneSessions drops persisted rows that outlived the cookie that points
// at them.
func pruneSessions(ctx context.Context, repo *store.BrowserSessionRepository, maxAge time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx, time.Now().Add(-maxAge))
			if err != nil {
				logger.WithError(err).Error("failed to prune expired sessions")
				continue
			}
			if n > 0 {
				logger.WithField("deleted", n).Info("pruned expired sessions")
			}
		}
	}
}
