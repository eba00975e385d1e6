package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CosmoTheDev/assessmaker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type libraryRow struct {
	ID          int64  `db:"id"`
	Title       string `db:"title"`
	Category    string `db:"category"`
	Severity    string `db:"severity"`
	Description string `db:"description"`
	Impact      string `db:"impact"`
	Mitigation  string `db:"mitigation"`
	CreatedAt   string `db:"created_at"`
}

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var n int
	require.NoError(t, db.Get(context.Background(), &n, `SELECT COUNT(*) FROM schema_migrations`))
	assert.Equal(t, 1, n)
}

func TestInsertGetMapsColumnsByName(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	id, err := db.Insert(ctx, "findings_library", libraryRow{
		Title: "SQL Injection", Category: "Injection", Severity: "High", CreatedAt: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	// Column order deliberately differs from struct field order.
	var got libraryRow
	require.NoError(t, db.Get(ctx, &got, `SELECT severity, title, id FROM findings_library WHERE id = ?`, id))
	assert.Equal(t, libraryRow{ID: id, Title: "SQL Injection", Severity: "High"}, got)
}

func TestGetReturnsErrNoRows(t *testing.T) {
	db := newTestDB(t)
	var got libraryRow
	err := db.Get(context.Background(), &got, `SELECT * FROM findings_library WHERE id = ?`, 42)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx DB) error {
		if _, err := tx.Insert(ctx, "findings_library", libraryRow{Title: "a", CreatedAt: "x"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.Get(ctx, &n, `SELECT COUNT(*) FROM findings_library`))
	assert.Zero(t, n)

	require.NoError(t, db.WithTx(ctx, func(tx DB) error {
		_, err := tx.Insert(ctx, "findings_library", libraryRow{Title: "b", CreatedAt: "x"})
		return err
	}))
	require.NoError(t, db.Get(ctx, &n, `SELECT COUNT(*) FROM findings_library`))
	assert.Equal(t, 1, n)
}

func TestTxRejectsLifecycleCalls(t *testing.T) {
	db := newTestDB(t)
	err := db.WithTx(context.Background(), func(tx DB) error {
		assert.ErrorIs(t, tx.Migrate(context.Background()), ErrInTx)
		assert.Equal(t, "sqlite", tx.Driver())
		return nil
	})
	require.NoError(t, err)
}

func TestUpsertUpdatesOnConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	row := libraryRow{ID: 7, Title: "old", CreatedAt: "x"}
	require.NoError(t, db.Upsert(ctx, "findings_library", row, []string{"id"}))
	row.Title = "new"
	require.NoError(t, db.Upsert(ctx, "findings_library", row, []string{"id"}))

	var rows []libraryRow
	require.NoError(t, db.Select(ctx, &rows, `SELECT id, title FROM findings_library`))
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].Title)
}

func TestMySQLAdaptRewritesDialect(t *testing.T) {
	out := mysqlAdapt("-- comment; with semicolon\nCREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT);\nCREATE INDEX IF NOT EXISTS i ON t (id);")
	assert.Contains(t, out, "INT NOT NULL AUTO_INCREMENT PRIMARY KEY")
	assert.Contains(t, out, "CREATE INDEX i ON t")
	assert.False(t, strings.Contains(out, "comment"))
}

func TestMySQLDSNAddsCharset(t *testing.T) {
	assert.Equal(t, "u:p@tcp(h)/db?charset=utf8mb4", mysqlDSN("u:p@tcp(h)/db"))
	assert.Equal(t, "u:p@tcp(h)/db?x=1&charset=utf8mb4", mysqlDSN("u:p@tcp(h)/db?x=1"))
	assert.Equal(t, "u:p@tcp(h)/db?charset=latin1", mysqlDSN("u:p@tcp(h)/db?charset=latin1"))
}
