package store

import (
	"context"
	"fmt"
	"time"

	"pulsepoint/internal/utils"
	"pulsepoint/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const browserSessionTableName = "pulsepoint.browser_sessions"

var browserSessionColumns = utils.StructTagValues(types.PersistedSession{})

// BrowserSessionRepository persists the token and minimal profile of a
// browser session as one row, so both are always written and removed
// together.
type BrowserSessionRepository struct {
	pool *pgxpool.Pool
}

func NewBrowserSessionRepository(pool *pgxpool.Pool) *BrowserSessionRepository {
	return &BrowserSessionRepository{pool: pool}
}

// Load returns nil when nothing is persisted for sessionID.
func (r *BrowserSessionRepository) Load(ctx context.Context, sessionID string) (*types.PersistedSession, error) {
	query, args, err := psql().
		Select(browserSessionColumns...).
		From(browserSessionTableName).
		Where(sq.Eq{"session_id": sessionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate browser session query: %w", err)
	}

	var sess types.PersistedSession
	err = pgxscan.Get(ctx, r.pool, &sess, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch browser session: %w", err)
	}

	return &sess, nil
}

func (r *BrowserSessionRepository) Save(ctx context.Context, sess *types.PersistedSession) error {
	if sess == nil || sess.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	sess.UpdatedAt = time.Now().UTC()

	var profile []byte
	if sess.Profile != nil {
		profile = utils.MustMarshalJSON(sess.Profile)
	}

	query, args, err := psql().
		Insert(browserSessionTableName).
		Columns("session_id", "session_token", "profile", "updated_at").
		Values(sess.SessionID, sess.SessionToken, profile, sess.UpdatedAt).
		Suffix("ON CONFLICT (session_id) DO UPDATE SET session_token = EXCLUDED.session_token, profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate save browser session query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to save browser session")
}

func (r *BrowserSessionRepository) Clear(ctx context.Context, sessionID string) error {
	query, args, err := psql().
		Delete(browserSessionTableName).
		Where(sq.Eq{"session_id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate clear browser session query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to clear browser session")
}

// Recent lists persisted sessions, most recently updated first.
func (r *BrowserSessionRepository) Recent(ctx context.Context, limit uint64) ([]*types.PersistedSession, error) {
	if limit == 0 {
		limit = 20
	}

	query, args, err := psql().
		Select(browserSessionColumns...).
		From(browserSessionTableName).
		OrderBy("updated_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate recent browser sessions query: %w", err)
	}

	var sessions []*types.PersistedSession
	err = pgxscan.Select(ctx, r.pool, &sessions, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent browser sessions: %w", err)
	}

	return sessions, nil
}

// DeleteExpired removes sessions not written since before cutoff.
func (r *BrowserSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql().
		Delete(browserSessionTableName).
		Where(sq.Lt{"updated_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate delete expired sessions query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
