// Package store holds the durable side of browser sessions: the Postgres and
// Redis persisters and the session event audit trail.
package store

import sq "github.com/Masterminds/squirrel"

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}
