package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pulsepoint/internal/session"
	"pulsepoint/pkg/types"

	"github.com/redis/go-redis/v9"
)

// RedisPersister keeps each session as two keys, token and profile, that
// share one TTL and are always written and deleted in one transaction.
type RedisPersister struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisPersister(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, prefix: prefix, ttl: ttl}
}

// ConnectRedis parses url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func (r *RedisPersister) Load(ctx context.Context, sessionID string) (*types.PersistedSession, error) {
	values, err := r.client.MGet(ctx, session.TokenKey(r.prefix, sessionID), session.ProfileKey(r.prefix, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	token, _ := values[0].(string)
	if token == "" {
		return nil, nil
	}

	sess := &types.PersistedSession{SessionID: sessionID, SessionToken: token}

	if raw, ok := values[1].(string); ok && raw != "" {
		var profile types.UserProfile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			return nil, fmt.Errorf("decode persisted profile: %w", err)
		}
		sess.Profile = &profile
	}

	return sess, nil
}

func (r *RedisPersister) Save(ctx context.Context, sess *types.PersistedSession) error {
	if sess == nil || sess.SessionID == "" {
		return errors.New("session id is required")
	}

	var profile []byte
	if sess.Profile != nil {
		var err error
		profile, err = json.Marshal(sess.Profile)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
	}

	tokenKey := session.TokenKey(r.prefix, sess.SessionID)
	profileKey := session.ProfileKey(r.prefix, sess.SessionID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey, sess.SessionToken, r.ttl)
		if profile != nil {
			pipe.Set(ctx, profileKey, profile, r.ttl)
		} else {
			pipe.Del(ctx, profileKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}

	return nil
}

func (r *RedisPersister) Clear(ctx context.Context, sessionID string) error {
	err := r.client.Del(ctx, session.TokenKey(r.prefix, sessionID), session.ProfileKey(r.prefix, sessionID)).Err()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
