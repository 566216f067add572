// Package migrations holds the embedded ledger and analytics schemas and
// applies them with goose.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"sync"

	"github.com/pressly/goose/v3"
)

// gooseMu guards goose's package-level base FS, dialect and logger.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// up applies every migration in dir of fsys that goose has not yet recorded.
// A nil logger silences goose.
func up(ctx context.Context, db *sql.DB, fsys fs.FS, dialect, dir string, logger *log.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if logger != nil {
		goose.SetLogger(logger)
	} else {
		goose.SetLogger(goose.NopLogger())
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect %s: %w", dialect, err)
	}
	if err := gooseUpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("apply %s migrations: %w", dir, err)
	}
	return nil
}
