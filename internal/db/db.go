package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"voicejournal/internal/auth"
	"voicejournal/internal/crisis"
	"voicejournal/internal/entry"
	"voicejournal/internal/jobs"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

// Ping checks the underlying connection pool.
func Ping(gdb *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func AutoMigrateAndIndexes(gdb *gorm.DB, log zerolog.Logger) error {
	if err := gdb.AutoMigrate(
		&auth.User{},
		&entry.Entry{},
		&crisis.Flag{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	stmts := []string{
		// dashboard and listing reads
		`create index if not exists idx_entries_user_created on entries(user_id, created_at desc);`,
		`create index if not exists idx_entries_tags on entries using gin (tags);`,
		`create index if not exists idx_entries_fts on entries using gin (to_tsvector('simple', transcript || ' ' || text_summary));`,
		`create index if not exists idx_entries_video_pending on entries(id) where video_ref is null;`,
		`create index if not exists idx_crisis_flags_user_created on crisis_flags(user_id, created_at desc);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}
	log.Info().Int("indexes", len(stmts)).Msg("schema migrated")
	return nil
}
