package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"card-broker/internal/config"
)

const testSchema = `CREATE TABLE IF NOT EXISTS notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)`

func TestNewSQLite_InMemory(t *testing.T) {
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Migrate(ctx, testSchema, testSchema); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	t.Run("CommitsOnSuccess", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO notes (body) VALUES (?)`, "kept")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx returned error: %v", err)
		}
	})

	t.Run("RollsBackOnError", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO notes (body) VALUES (?)`, "dropped"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})

	var count int
	if err := s.DB().GetContext(ctx, &count, `SELECT COUNT(*) FROM notes`); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected only the committed row, got %d", count)
	}
}

func TestNewSQLite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "broker.db")
	s, err := NewSQLite(config.DatabaseConfig{Path: path, MaxOpenConns: 2, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.DB().Get(&mode, `PRAGMA journal_mode`); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL journal mode, got %q", mode)
	}
}
