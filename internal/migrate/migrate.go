// Package migrate brings the client_state table of the PostgreSQL state store
// up to date. The table keys sealed values by (profile, key); the schema lives
// in the embedded migrations package and is versioned by goose.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/migrations"
)

// Up applies pending client_state migrations and returns the schema version
// the database is at afterwards. A current database is left untouched.
func Up(ctx context.Context, dsn string, log *zap.Logger) (int64, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		_ = db.Close()
		return 0, err
	}
	defer p.Close()

	applied, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply client_state schema: %w", err)
	}
	for _, r := range applied {
		log.Info("state schema migrated",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("took", r.Duration))
	}
	return p.GetDBVersion(ctx)
}
