package payment

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAlreadyClaimed = errors.New("callback already claimed")
	ErrNotFound       = errors.New("callback resolution not found")
)

//go:embed schema.sql
var schema string

// Repository is the resolution ledger. Claim succeeds once per key.
type Repository interface {
	Claim(ctx context.Context, key string) error
	Complete(ctx context.Context, key string, out Outcome) error
	Get(ctx context.Context, key string) (*Record, error)
}

type memoryRepository struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryRepository keeps the ledger in process memory.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]Record)}
}

func (r *memoryRepository) Claim(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[key]; ok {
		return ErrAlreadyClaimed
	}
	r.records[key] = Record{
		Key:       key,
		Outcome:   Outcome{State: StateUnresolved},
		ClaimedAt: time.Now(),
	}
	return nil
}

func (r *memoryRepository) Complete(_ context.Context, key string, out Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	rec.Outcome = out
	rec.ResolvedAt = &now
	r.records[key] = rec
	return nil
}

func (r *memoryRepository) Get(_ context.Context, key string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

type pgxRepository struct {
	db *pgxpool.Pool
}

// NewPgxRepository stores the ledger in public.payment_resolutions.
func NewPgxRepository(db *pgxpool.Pool) Repository {
	return &pgxRepository{db: db}
}

// EnsureSchema creates the ledger table when it does not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create payment_resolutions: %w", err)
	}
	return nil
}

func (r *pgxRepository) Claim(ctx context.Context, key string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.payment_resolutions").
		Columns("callback_key", "state").
		Values(key, string(StateUnresolved)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		var e *pgconn.PgError
		if errors.As(err, &e) && e.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to claim callback: %w", err)
	}
	return nil
}

func (r *pgxRepository) Complete(ctx context.Context, key string, out Outcome) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.payment_resolutions").
		Set("state", string(out.State)).
		Set("message", out.Message).
		Set("target", out.Target).
		Set("resolved_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"callback_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to complete callback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) Get(ctx context.Context, key string) (*Record, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select("callback_key", "state", "message", "target", "claimed_at", "resolved_at").
		From("public.payment_resolutions").
		Where(squirrel.Eq{"callback_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var (
		rec   Record
		state string
	)
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&rec.Key,
		&state,
		&rec.Outcome.Message,
		&rec.Outcome.Target,
		&rec.ClaimedAt,
		&rec.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get callback resolution: %w", err)
	}
	rec.Outcome.State = State(state)
	return &rec, nil
}
