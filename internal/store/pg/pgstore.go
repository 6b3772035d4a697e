package pg

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"oversight.dev/internal/action"
	"oversight.dev/internal/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations exposes the embedded schema files for the migrate manager.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const uniqueViolation = "23505"

const entryColumns = `id, name, description, parameters, reversible, domain, risk_score, factors, decision, outcome, created_at, resolved_at, seq`

type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle; the caller keeps ownership of db.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.ID == "" {
		return ledger.Entry{}, fmt.Errorf("%w: id is required", ledger.ErrInvalid)
	}
	factors, err := json.Marshal(nonNil(e.Factors))
	if err != nil {
		return ledger.Entry{}, err
	}
	var params any
	if len(e.Parameters) > 0 {
		params = []byte(e.Parameters)
	}
	err = s.db.QueryRowContext(ctx, `
		insert into actions(id, name, description, parameters, reversible, domain, risk_score, factors, decision, outcome, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		returning seq
	`, e.ID, e.Name, e.Description, params, e.Reversible, string(e.Domain), e.Score, factors,
		string(e.Decision), string(e.Outcome), e.Timestamp).Scan(&e.Sequence)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrDuplicate, e.ID)
		}
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) Find(ctx context.Context, id string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, `select `+entryColumns+` from actions where id=$1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return e, err
}

// SetOutcome relies on the outcome='pending' predicate so that concurrent
// resolvers across processes still see exactly one winner.
func (s *Store) SetOutcome(ctx context.Context, id string, outcome action.Outcome, at time.Time) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		update actions set outcome=$2, resolved_at=$3
		where id=$1 and outcome='pending'
		returning `+entryColumns,
		id, string(outcome), at.UTC())
	e, err := scanEntry(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, err
	}
	current, err := s.Find(ctx, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	return current, ledger.ErrNotPending
}

func (s *Store) List(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `select `+entryColumns+` from actions order by seq asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from actions`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(r scanner) (ledger.Entry, error) {
	var (
		e                         ledger.Entry
		params, factors           []byte
		domain, decision, outcome string
		resolved                  sql.NullTime
	)
	if err := r.Scan(&e.ID, &e.Name, &e.Description, &params, &e.Reversible, &domain, &e.Score,
		&factors, &decision, &outcome, &e.Timestamp, &resolved, &e.Sequence); err != nil {
		return ledger.Entry{}, err
	}
	if len(params) > 0 {
		e.Parameters = json.RawMessage(params)
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &e.Factors); err != nil {
			return ledger.Entry{}, fmt.Errorf("decode factors for %s: %w", e.ID, err)
		}
	}
	e.Domain = action.Domain(domain)
	e.Decision = action.Decision(decision)
	e.Outcome = action.Outcome(outcome)
	e.Timestamp = e.Timestamp.UTC()
	if resolved.Valid {
		t := resolved.Time.UTC()
		e.ResolvedAt = &t
	}
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
