package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// sqliteProfileRepo implements the profile repository on SQLite
type sqliteProfileRepo struct {
	db *sql.DB
}

// NewSQLiteProfileRepo creates a SQLite-backed profile repository
func NewSQLiteProfileRepo(dbPath string) (repo.ProfileRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer keeps upserts serialized
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			actor_id TEXT PRIMARY KEY,
			xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 1,
			title TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Add talkative column (if not exists) - for database migration
	_, _ = db.Exec(`ALTER TABLE profiles ADD COLUMN talkative INTEGER NOT NULL DEFAULT 0`)

	return &sqliteProfileRepo{db: db}, nil
}

// GetProfile gets a profile by actor id
func (r *sqliteProfileRepo) GetProfile(ctx context.Context, actorID string) (*domain.Profile, error) {
	return r.get(ctx, r.db, domain.NormalizeID(actorID))
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *sqliteProfileRepo) get(ctx context.Context, q queryer, id string) (*domain.Profile, error) {
	row := q.QueryRowContext(ctx, `
		SELECT actor_id, xp, level, title, talkative, updated_at
		FROM profiles
		WHERE actor_id = ?
	`, id)

	var p domain.Profile
	var talkative int
	err := row.Scan(&p.ActorID, &p.XP, &p.Level, &p.Title, &talkative, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	p.Talkative = talkative != 0
	return &p, nil
}

// UpsertProfile applies the patch inside a transaction
func (r *sqliteProfileRepo) UpsertProfile(ctx context.Context, actorID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	id := domain.NormalizeID(actorID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := r.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &domain.Profile{ActorID: id, Level: 1}
	}
	patch.Apply(p)
	p.UpdatedAt = time.Now().Unix()

	talkative := 0
	if p.Talkative {
		talkative = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO profiles (actor_id, xp, level, title, talkative, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ActorID, p.XP, p.Level, p.Title, talkative, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit profile: %w", err)
	}
	return p, nil
}

// Close closes the database connection
func (r *sqliteProfileRepo) Close() error {
	return r.db.Close()
}
