package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"courtbot/internal/auth"
	"courtbot/internal/conversation"
	"courtbot/internal/hearing"
	"courtbot/internal/jobs"
	"courtbot/internal/notify"
	"courtbot/internal/request"
)

// Connect opens postgres for postgres:// and key=value DSNs, and sqlite for
// sqlite:// or file: DSNs.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	sqliteDB := false
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		dialector, sqliteDB = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), true
	case strings.HasPrefix(dsn, "file:"):
		dialector, sqliteDB = sqlite.Open(dsn), true
	default:
		dialector = postgres.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, err
	}
	if sqliteDB {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers; one connection avoids "database is locked"
		// under concurrent sweeps.
		sqlDB.SetMaxOpenConns(1)
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&hearing.Hearing{},
		&hearing.Citation{},
		&request.Request{},
		&request.QueuedItem{},
		&notify.Notification{},
		&conversation.Session{},
		&jobs.Run{},
		&auth.User{},
	); err != nil {
		return err
	}

	// One active subscription per phone and case; inactive rows stay for audit.
	if err := gdb.Exec(`
create unique index if not exists uq_requests_active
on requests(phone, case_id)
where active;
`).Error; err != nil {
		return err
	}

	stmts := []string{
		`create index if not exists idx_requests_unmatched on requests(known_case, active, updated_at);`,
		`create index if not exists idx_citations_case on citations(case_id, citation_id);`,
		`create index if not exists idx_notifications_event on notifications(phone, case_id, type, event_date);`,
		`create index if not exists idx_queued_pending on queued(sent, created_at);`,
		`create index if not exists idx_job_runs_type_started on job_runs(type, started_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
