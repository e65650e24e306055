// Package graph implements the permission graph over SQLite: which persona
// may request which data type, who owns each data type, and which data types
// carry an approval policy.
package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"agentorg/internal/domain"
	"agentorg/internal/infra/config"
)

// Store implements domain.PermissionResolver backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and runs the schema
// migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate graph db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS can_request (
			persona   TEXT NOT NULL,
			data_type TEXT NOT NULL,
			PRIMARY KEY (persona, data_type)
		);
		CREATE TABLE IF NOT EXISTS data_owner (
			data_type TEXT PRIMARY KEY,
			owner     TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS approval_policy (
			data_type TEXT PRIMARY KEY,
			level     TEXT NOT NULL,
			reason    TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Seed replaces the graph content with the configured edges. Called once at
// startup; the permission-edit API mutates the registry, not the graph.
func (s *Store) Seed(ctx context.Context, cfg config.GraphConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed graph: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"can_request", "data_owner", "approval_policy"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, g := range cfg.Grants {
		if _, err := tx.Exec(
			"INSERT INTO can_request (persona, data_type) VALUES (?, ?)",
			g.Persona, g.DataType,
		); err != nil {
			return fmt.Errorf("seed grant: %w", err)
		}
	}
	for dataType, owner := range cfg.Owners {
		if _, err := tx.Exec(
			"INSERT INTO data_owner (data_type, owner) VALUES (?, ?)",
			dataType, owner,
		); err != nil {
			return fmt.Errorf("seed owner: %w", err)
		}
	}
	for _, p := range cfg.Policies {
		if _, err := tx.Exec(
			"INSERT INTO approval_policy (data_type, level, reason) VALUES (?, ?, ?)",
			p.DataType, p.Level, p.Reason,
		); err != nil {
			return fmt.Errorf("seed policy: %w", err)
		}
	}
	return tx.Commit()
}

// Resolve runs the combined routing lookup: permission edge, owner, approval
// policy. A missing permission edge means not allowed; a missing owner leaves
// OwnerSlug empty for the caller to fall back on the addressed target.
func (s *Store) Resolve(ctx context.Context, sourceSlug, dataType string) (domain.RouteDecision, error) {
	var decision domain.RouteDecision

	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM can_request WHERE persona = ? AND data_type = ?",
		sourceSlug, dataType,
	).Scan(&one)
	switch {
	case err == nil:
		decision.Allowed = true
	case errors.Is(err, sql.ErrNoRows):
		decision.Allowed = false
	default:
		return domain.RouteDecision{}, domain.NewDomainError("graph.Resolve", domain.ErrGraphUnavailable, err.Error())
	}

	var owner string
	err = s.db.QueryRowContext(ctx,
		"SELECT owner FROM data_owner WHERE data_type = ?", dataType,
	).Scan(&owner)
	switch {
	case err == nil:
		decision.OwnerSlug = owner
	case errors.Is(err, sql.ErrNoRows):
		// No declared owner; the gate substitutes the addressed target.
	default:
		return domain.RouteDecision{}, domain.NewDomainError("graph.Resolve", domain.ErrGraphUnavailable, err.Error())
	}

	var level, reason string
	err = s.db.QueryRowContext(ctx,
		"SELECT level, reason FROM approval_policy WHERE data_type = ?", dataType,
	).Scan(&level, &reason)
	switch {
	case err == nil:
		decision.Policy = &domain.ApprovalPolicy{Level: level, Reason: reason}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return domain.RouteDecision{}, domain.NewDomainError("graph.Resolve", domain.ErrGraphUnavailable, err.Error())
	}

	return decision, nil
}

var _ domain.PermissionResolver = (*Store)(nil)
