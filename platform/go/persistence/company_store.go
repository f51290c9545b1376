package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Company lifecycle states as stored in the registry.
const (
	CompanyStatePending = "pending"
	CompanyStateActive  = "active"
	CompanyStateFailed  = "failed"
)

const (
	companiesNameIndex  = "companies_name_unique_live"
	companiesStoreIndex = "companies_store_name_unique"
	pgUniqueViolation   = "23505"
)

var (
	// ErrNotFound is returned when a company record is not found.
	ErrNotFound = errors.New("company not found")
	// ErrNameTaken is returned when a live company already uses the normalized name.
	ErrNameTaken = errors.New("company name already in use")
	// ErrStoreNameTaken is returned when another company already points at the store.
	ErrStoreNameTaken = errors.New("tenant store already assigned")
	// ErrNotPending is returned when a state transition targets a company that already left pending.
	ErrNotPending = errors.New("company is not pending")
	// ErrRegistryMissing means the admin schema has no companies table; run BootstrapAdminSchema first.
	ErrRegistryMissing = errors.New("tenant registry not bootstrapped")
)

// CompanyRecord represents one row of the tenant registry.
type CompanyRecord struct {
	CompanyID       uuid.UUID `db:"company_id"`
	Name            string    `db:"name"`
	NormalizedName  string    `db:"normalized_name"`
	AdminEmail      string    `db:"admin_email"`
	BillingPlan     string    `db:"billing_plan"`
	Modules         []string  `db:"modules"`
	Submodules      []string  `db:"submodules"`
	State           string    `db:"state"`
	StoreName       *string   `db:"store_name"`
	CleanupRequired bool      `db:"cleanup_required"`
	LastError       *string   `db:"last_error"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

const companyColumns = `company_id, name, normalized_name, admin_email, billing_plan, modules, submodules,
        state, store_name, cleanup_required, last_error, created_at, updated_at`

// CompanyStore provides access to the companies table inside the admin schema.
type CompanyStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewCompanyStore creates a store after checking that BootstrapAdminSchema created the registry table.
func NewCompanyStore(ctx context.Context, pool *pgxpool.Pool, adminSchema string) (*CompanyStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	adminSchema = strings.TrimSpace(adminSchema)
	if adminSchema == "" {
		return nil, errors.New("admin schema is required")
	}
	table := pgx.Identifier{adminSchema, "companies"}.Sanitize()

	var present bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&present); err != nil {
		return nil, fmt.Errorf("check tenant registry: %w", err)
	}
	if !present {
		return nil, fmt.Errorf("%w: %s", ErrRegistryMissing, table)
	}
	return &CompanyStore{pool: pool, table: table}, nil
}

// Insert persists a new company in pending state. The partial unique index on
// normalized_name makes concurrent inserts for the same name fail with ErrNameTaken.
func (s *CompanyStore) Insert(ctx context.Context, rec CompanyRecord) (CompanyRecord, error) {
	if rec.CompanyID == uuid.Nil {
		return CompanyRecord{}, errors.New("company id is required")
	}
	if rec.NormalizedName == "" {
		return CompanyRecord{}, errors.New("normalized name is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            company_id, name, normalized_name, admin_email, billing_plan, modules, submodules,
            state, store_name, cleanup_required, last_error, created_at, updated_at
        ) VALUES (
            $1,$2,$3,$4,$5,$6,$7,'pending',NULL,FALSE,NULL,$8,$8
        )
        RETURNING %s
    `, s.table, companyColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.CompanyID, rec.Name, rec.NormalizedName, rec.AdminEmail, rec.BillingPlan,
		nonNil(rec.Modules), nonNil(rec.Submodules), rec.CreatedAt,
	)

	out, err := scanCompanyRecord(row)
	if err != nil {
		return CompanyRecord{}, mapUniqueViolation(err)
	}
	return out, nil
}

// MarkActive moves a pending company to active and attaches its store name.
func (s *CompanyStore) MarkActive(ctx context.Context, id uuid.UUID, storeName string, at time.Time) (CompanyRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s
        SET state = 'active', store_name = $2, last_error = NULL, updated_at = $3
        WHERE company_id = $1 AND state = 'pending'
        RETURNING %s
    `, s.table, companyColumns)

	out, err := scanCompanyRecord(s.pool.QueryRow(ctx, query, id, storeName, at))
	if err != nil {
		return CompanyRecord{}, s.transitionError(ctx, id, mapUniqueViolation(err))
	}
	return out, nil
}

// MarkFailed moves a pending company to failed, keeping the reason and, when cleanup
// could not remove it, the orphaned store name for operator follow-up.
func (s *CompanyStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, storeName *string, cleanupRequired bool, at time.Time) (CompanyRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s
        SET state = 'failed', store_name = $2, cleanup_required = $3, last_error = $4, updated_at = $5
        WHERE company_id = $1 AND state = 'pending'
        RETURNING %s
    `, s.table, companyColumns)

	out, err := scanCompanyRecord(s.pool.QueryRow(ctx, query, id, storeName, cleanupRequired, reason, at))
	if err != nil {
		return CompanyRecord{}, s.transitionError(ctx, id, mapUniqueViolation(err))
	}
	return out, nil
}

// Get fetches a company by id.
func (s *CompanyStore) Get(ctx context.Context, id uuid.UUID) (CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE company_id = $1`, companyColumns, s.table)
	return scanCompanyRecord(s.pool.QueryRow(ctx, query, id))
}

// GetByName returns the live (pending or active) company for a normalized name,
// falling back to the most recent failed attempt.
func (s *CompanyStore) GetByName(ctx context.Context, normalizedName string) (CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE normalized_name = $1
        ORDER BY (state <> 'failed') DESC, created_at DESC
        LIMIT 1`, companyColumns, s.table)
	return scanCompanyRecord(s.pool.QueryRow(ctx, query, normalizedName))
}

// List returns paginated companies with an optional state filter.
func (s *CompanyStore) List(ctx context.Context, state *string, limit, offset int) ([]CompanyRecord, int, error) {
	where := ""
	args := []any{}
	if state != nil {
		where = "WHERE state = $1"
		args = append(args, *state)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", s.table, where)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s
        ORDER BY created_at DESC
        LIMIT %d OFFSET %d`, companyColumns, s.table, where, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []CompanyRecord
	for rows.Next() {
		rec, err := scanCompanyRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// transitionError distinguishes "no such company" from "company already left pending"
// when a guarded UPDATE matched no row.
func (s *CompanyStore) transitionError(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return getErr
	}
	return ErrNotPending
}

func scanCompanyRecord(row pgx.Row) (CompanyRecord, error) {
	var rec CompanyRecord
	if err := row.Scan(&rec.CompanyID, &rec.Name, &rec.NormalizedName, &rec.AdminEmail, &rec.BillingPlan,
		&rec.Modules, &rec.Submodules, &rec.State, &rec.StoreName, &rec.CleanupRequired, &rec.LastError,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyRecord{}, ErrNotFound
		}
		return CompanyRecord{}, err
	}
	return rec, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case companiesNameIndex:
			return ErrNameTaken
		case companiesStoreIndex:
			return ErrStoreNameTaken
		}
	}
	return err
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
