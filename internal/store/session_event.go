package store

import (
	"context"
	"fmt"
	"strings"

	"pulsepoint/internal/utils"
	"pulsepoint/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionEventsTableName = "pulsepoint.session_events"

var sessionEventsColumns = utils.StructTagValues(types.SessionEvent{})

type SessionEventRepository struct {
	pool *pgxpool.Pool
}

func NewSessionEventRepository(pool *pgxpool.Pool) *SessionEventRepository {
	return &SessionEventRepository{pool: pool}
}

// RecordSessionEvent appends one transition to the audit trail.
func (r *SessionEventRepository) RecordSessionEvent(ctx context.Context, sessionID, email string, kind types.SessionEventKind, detail string) error {
	id := utils.NanoID()

	query, args, err := psql().
		Insert(sessionEventsTableName).
		Columns("id", "session_id", "email", "kind", "detail").
		Values(id, sessionID, optional(email), kind, optional(detail)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert session event query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to record session event")
}

// EventsBySession returns the most recent events of a session, newest first.
func (r *SessionEventRepository) EventsBySession(ctx context.Context, sessionID string, limit uint64) ([]*types.SessionEvent, error) {
	if limit == 0 {
		limit = 50
	}

	query, args, err := psql().
		Select(sessionEventsColumns...).
		From(sessionEventsTableName).
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session events query: %w", err)
	}

	var events []*types.SessionEvent
	err = pgxscan.Select(ctx, r.pool, &events, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to get session events")
	}

	return events, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return utils.StringPtr(s)
}
