// Package inventory keeps a local record of remote machines so listings
// survive restarts and work without a provider round trip.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/machines"
)

// Record is one known machine.
type Record struct {
	App       string
	ID        string
	Name      string
	State     machines.State
	Region    string
	PrivateIP string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ref returns the machine reference for the record.
func (r *Record) Ref() machines.Ref {
	return machines.Ref{App: r.App, ID: r.ID}
}

// FromMachine converts a provider machine into a record.
func FromMachine(m *machines.Machine) *Record {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &Record{
		App:       m.App,
		ID:        m.ID,
		Name:      m.Name,
		State:     m.State,
		Region:    m.Region,
		PrivateIP: m.PrivateIP,
		Image:     m.Config.Image,
		CreatedAt: created.UTC(),
	}
}

// Store persists machine records in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the inventory database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening inventory: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS machines (
			app        TEXT NOT NULL,
			id         TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			state      TEXT NOT NULL DEFAULT '',
			region     TEXT NOT NULL DEFAULT '',
			private_ip TEXT NOT NULL DEFAULT '',
			image      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (app, id)
		);

		CREATE INDEX IF NOT EXISTS idx_machines_app ON machines(app);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces a record.
func (s *Store) Put(ctx context.Context, r *Record) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO machines (app, id, name, state, region, private_ip, image, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (app, id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			region = excluded.region,
			private_ip = excluded.private_ip,
			image = excluded.image,
			updated_at = excluded.updated_at`,
		r.App, r.ID, r.Name, string(r.State), r.Region, r.PrivateIP, r.Image,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving machine %s/%s: %w", r.App, r.ID, err)
	}
	return nil
}

// SetState updates the recorded state of a machine. It is a no-op for an
// unknown machine.
func (s *Store) SetState(ctx context.Context, ref machines.Ref, state machines.State) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE machines SET state = ?, updated_at = ? WHERE app = ? AND id = ?`,
		string(state), time.Now().UTC(), ref.App, ref.ID,
	)
	return err
}

// Get returns the record for ref, or nil if none exists.
func (s *Store) Get(ctx context.Context, ref machines.Ref) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT app, id, name, state, region, private_ip, image, created_at, updated_at
		 FROM machines WHERE app = ? AND id = ?`, ref.App, ref.ID,
	)
	r, err := scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// List returns the records for app, or every record when app is empty,
// oldest first.
func (s *Store) List(ctx context.Context, app string) ([]*Record, error) {
	query := `SELECT app, id, name, state, region, private_ip, image, created_at, updated_at FROM machines`
	var args []any
	if app != "" {
		query += ` WHERE app = ?`
		args = append(args, app)
	}
	query += ` ORDER BY created_at, app, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes the record for ref.
func (s *Store) Delete(ctx context.Context, ref machines.Ref) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM machines WHERE app = ? AND id = ?`, ref.App, ref.ID)
	return err
}

// DeleteApp removes every record for app and returns how many were removed.
func (s *Store) DeleteApp(ctx context.Context, app string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM machines WHERE app = ?`, app)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (*Record, error) {
	var r Record
	var state string
	if err := sc.Scan(&r.App, &r.ID, &r.Name, &state, &r.Region, &r.PrivateIP, &r.Image,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.State = machines.State(state)
	return &r, nil
}
