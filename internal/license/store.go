package license

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Defaults applied to newly created grants
const (
	DefaultPlan          = "premium"
	DefaultSessionsLimit = 5
	DefaultValidity      = 365 * 24 * time.Hour
)

// Store is the durable record of license grants. Implementations must be
// safe for concurrent use; nil grant with nil error means "no active grant",
// which callers treat as a normal negative result.
type Store interface {
	// FindActive returns the client's active grant, or nil when none exists
	FindActive(ctx context.Context, clientID string) (*Grant, error)

	// Activate creates a grant for the key or reactivates a matching
	// inactive one. Fails with ErrInvalidKeyFormat or ErrAlreadyActive.
	Activate(ctx context.Context, licenseKey, clientID string) (*Grant, error)

	// Deactivate flips active off on the client's active grant(s) and
	// returns the number of rows affected.
	Deactivate(ctx context.Context, clientID string) (int64, error)

	// DeactivateExpired flips active off on a specific grant that was
	// observed expired at read time.
	DeactivateExpired(ctx context.Context, grantID int64) error

	// TouchValidation increments validation bookkeeping. Best effort; the
	// caller's read path must not fail when this does.
	TouchValidation(ctx context.Context, clientID string) error

	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS license_grants (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	license_key TEXT NOT NULL UNIQUE,
	client_id TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 0,
	plan TEXT NOT NULL,
	expires_at TIMESTAMP,
	sessions_used INTEGER NOT NULL DEFAULT 0,
	sessions_limit INTEGER NOT NULL DEFAULT 5,
	activated_at TIMESTAMP NOT NULL,
	last_validated_at TIMESTAMP,
	validation_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_license_grants_client_active
	ON license_grants(client_id, active);
`

// SQLiteStore persists grants in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the grant database and bootstraps the schema
func NewSQLiteStore(dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open license database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize license schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(slog.String("component", "license_store")),
		now:    time.Now,
	}, nil
}

// NewSQLiteStoreWithDB wraps an existing database handle (used by tests)
func NewSQLiteStoreWithDB(db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize license schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(slog.String("component", "license_store")),
		now:    time.Now,
	}, nil
}

const grantColumns = `id, license_key, client_id, active, plan, expires_at,
	sessions_used, sessions_limit, activated_at, last_validated_at, validation_count`

// FindActive returns the client's active grant, or nil when none exists
func (s *SQLiteStore) FindActive(ctx context.Context, clientID string) (*Grant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM license_grants
		 WHERE client_id = ? AND active = 1
		 ORDER BY activated_at DESC LIMIT 1`, clientID)

	grant, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active grant: %w", err)
	}

	return grant, nil
}

// Activate creates or reactivates a grant for the key. The previous active
// grants of the client, if any, are deactivated in the same transaction so
// at most one grant per client stays active.
func (s *SQLiteStore) Activate(ctx context.Context, licenseKey, clientID string) (*Grant, error) {
	licenseKey = NormalizeKey(licenseKey)
	if err := ValidateKey(licenseKey); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin activation: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM license_grants WHERE license_key = ?`, licenseKey)
	existing, err := scanGrant(row)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up license key: %w", err)
	}

	if existing != nil && existing.Active {
		return nil, ErrAlreadyActive
	}

	now := s.now().UTC()
	expiresAt := now.Add(DefaultValidity)

	if _, err := tx.ExecContext(ctx,
		`UPDATE license_grants SET active = 0 WHERE client_id = ? AND active = 1`,
		clientID); err != nil {
		return nil, fmt.Errorf("failed to supersede previous grants: %w", err)
	}

	var grant *Grant
	if existing != nil {
		// Idempotent reactivation of a previously deactivated key
		if _, err := tx.ExecContext(ctx,
			`UPDATE license_grants
			 SET active = 1, client_id = ?, activated_at = ?, expires_at = ?
			 WHERE id = ?`,
			clientID, now, expiresAt, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to reactivate grant: %w", err)
		}

		existing.Active = true
		existing.ClientID = clientID
		existing.ActivatedAt = now
		existing.ExpiresAt = &expiresAt
		grant = existing
	} else {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO license_grants
			 (license_key, client_id, active, plan, expires_at,
			  sessions_used, sessions_limit, activated_at, validation_count)
			 VALUES (?, ?, 1, ?, ?, 0, ?, ?, 0)`,
			licenseKey, clientID, DefaultPlan, expiresAt, DefaultSessionsLimit, now)
		if err != nil {
			return nil, fmt.Errorf("failed to create grant: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read grant id: %w", err)
		}

		grant = &Grant{
			ID:            id,
			LicenseKey:    licenseKey,
			ClientID:      clientID,
			Active:        true,
			Plan:          DefaultPlan,
			ExpiresAt:     &expiresAt,
			SessionsLimit: DefaultSessionsLimit,
			ActivatedAt:   now,
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}

	s.logger.Info("license activated",
		slog.String("license_key", MaskKey(licenseKey)),
		slog.String("client_id", clientID),
		slog.Time("expires_at", expiresAt))

	return grant, nil
}

// Deactivate flips active off for all of the client's active grants
func (s *SQLiteStore) Deactivate(ctx context.Context, clientID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE license_grants SET active = 0 WHERE client_id = ? AND active = 1`,
		clientID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate grants: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deactivated grants: %w", err)
	}

	s.logger.Info("license deactivated",
		slog.String("client_id", clientID),
		slog.Int64("grants_affected", affected))

	return affected, nil
}

// DeactivateExpired flips active off on a grant observed expired at read time
func (s *SQLiteStore) DeactivateExpired(ctx context.Context, grantID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE license_grants SET active = 0 WHERE id = ?`, grantID); err != nil {
		return fmt.Errorf("failed to deactivate expired grant: %w", err)
	}
	return nil
}

// TouchValidation increments validation bookkeeping for the client's active grant
func (s *SQLiteStore) TouchValidation(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE license_grants
		 SET validation_count = validation_count + 1, last_validated_at = ?
		 WHERE client_id = ? AND active = 1`,
		s.now().UTC(), clientID)
	if err != nil {
		return fmt.Errorf("failed to touch validation: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row scanner) (*Grant, error) {
	var g Grant
	var active int
	var expiresAt, lastValidatedAt sql.NullTime

	err := row.Scan(&g.ID, &g.LicenseKey, &g.ClientID, &active, &g.Plan,
		&expiresAt, &g.SessionsUsed, &g.SessionsLimit, &g.ActivatedAt,
		&lastValidatedAt, &g.ValidationCount)
	if err != nil {
		return nil, err
	}

	g.Active = active == 1
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	if lastValidatedAt.Valid {
		t := lastValidatedAt.Time
		g.LastValidatedAt = &t
	}

	return &g, nil
}
