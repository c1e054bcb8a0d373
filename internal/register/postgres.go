package register

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/sentinel"
)

// PostgresStore persists registers in PostgreSQL. The state machine is
// enforced in SQL: transitions update only when the current status matches an
// allowed predecessor, so concurrent writers race on the row, not in Go.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed register store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the backing tables if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS registers (
		id             TEXT PRIMARY KEY,
		owner_id       TEXT NOT NULL,
		contents       JSONB NOT NULL,
		epoch          BIGINT NOT NULL,
		status         TEXT NOT NULL,
		operation_id   TEXT,
		lock_expiry    TIMESTAMPTZ,
		transaction_id TEXT,
		successors     TEXT[],
		archive_id     TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		last_updated   TIMESTAMPTZ NOT NULL,
		metadata       JSONB,
		seq            BIGSERIAL
	);
	CREATE INDEX IF NOT EXISTS registers_epoch_status_idx ON registers (epoch, status);
	CREATE INDEX IF NOT EXISTS registers_lock_expiry_idx ON registers (lock_expiry) WHERE status = 'locked';
	CREATE TABLE IF NOT EXISTS register_stubs (
		register_id       TEXT PRIMARY KEY REFERENCES registers(id),
		archive_id        TEXT NOT NULL,
		summary_id        TEXT NOT NULL,
		verification_hash TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS register_class_index (
		class       TEXT NOT NULL,
		register_id TEXT NOT NULL,
		PRIMARY KEY (class, register_id)
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate registers: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, contents domain.Contents, owner domain.Owner, epoch domain.EpochID, metadata map[string]string) (*domain.Register, error) {
	id := domain.ComputeRegisterID(contents, owner, epoch)

	contentsJSON, err := domain.MarshalContents(contents)
	if err != nil {
		return nil, fmt.Errorf("encode contents: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	now := time.Now()
	// Idempotent by content address: a conflicting insert leaves the existing
	// row untouched.
	const insert = `
		INSERT INTO registers (id, owner_id, contents, epoch, status, created_at, last_updated, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insert, string(id), string(owner), contentsJSON, int64(epoch), string(domain.StatusActive), now, metadataJSON); err != nil {
		return nil, fmt.Errorf("insert register: %w", err)
	}

	for class := range contents.Amounts() {
		const index = `
			INSERT INTO register_class_index (class, register_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`
		if _, err := s.db.ExecContext(ctx, index, string(class), string(id)); err != nil {
			return nil, fmt.Errorf("index register class: %w", err)
		}
	}

	return s.Get(ctx, id)
}

const selectColumns = `
	id, owner_id, contents, epoch, status,
	COALESCE(operation_id, ''), lock_expiry,
	COALESCE(transaction_id, ''), successors,
	COALESCE(archive_id, ''), created_at, last_updated, metadata`

func (s *PostgresStore) Get(ctx context.Context, id domain.RegisterID) (*domain.Register, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM registers WHERE id = $1`, string(id))
	reg, err := scanRegister(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load register: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) Exists(ctx context.Context, id domain.RegisterID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM registers WHERE id = $1)`, string(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("register exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id domain.RegisterID, next domain.State) (*domain.Register, error) {
	// Guard the edge in the UPDATE itself so two writers cannot both win.
	predecessors := validPredecessors(next.Status)
	if len(predecessors) == 0 {
		return nil, sentinel.ErrInvalidState
	}

	var lockExpiry *time.Time
	if next.Status == domain.StatusLocked {
		lockExpiry = &next.LockExpiry
	}
	storedOpID := next.OperationID
	if next.Status == domain.StatusActive {
		storedOpID = ""
	}

	// A locked row only moves for its lock holder; the anonymous release path
	// requires the lock expired.
	const update = `
		UPDATE registers
		SET status = $2, operation_id = NULLIF($3, ''), lock_expiry = $4,
		    transaction_id = NULLIF($5, ''), successors = $6,
		    archive_id = NULLIF($7, ''), last_updated = NOW()
		WHERE id = $1 AND status = ANY($8)
		  AND (status <> $9
		       OR COALESCE(operation_id, '') = $10
		       OR ($10 = '' AND $2 = $11 AND lock_expiry < NOW()))`
	res, err := s.db.ExecContext(ctx, update,
		string(id), string(next.Status), storedOpID, lockExpiry,
		string(next.TransactionID), pq.Array(registerIDs(next.Successors)),
		string(next.ArchiveID), pq.Array(predecessors),
		string(domain.StatusLocked), next.OperationID, string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("transition register: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition register: %w", err)
	}
	if affected == 0 {
		// Missing, no edge to next, or a lock held by someone else.
		reg, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if reg.State.Status == domain.StatusLocked &&
			domain.ValidTransition(reg.State.Status, next.Status) &&
			reg.State.OperationID != next.OperationID {
			return reg, sentinel.ErrConflict
		}
		return reg, sentinel.ErrInvalidState
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) ConsumedInEpoch(ctx context.Context, epoch domain.EpochID, limit int) ([]*domain.Register, error) {
	query := `SELECT ` + selectColumns + ` FROM registers WHERE epoch = $1 AND status = $2 ORDER BY seq`
	args := []any{int64(epoch), string(domain.StatusConsumed)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consumed registers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Register
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, fmt.Errorf("scan register: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ArchivedThrough(ctx context.Context, cutoff domain.EpochID, limit int) ([]domain.RegisterID, error) {
	query := `SELECT id FROM registers WHERE epoch <= $1 AND status = $2 ORDER BY seq`
	args := []any{int64(cutoff), string(domain.StatusArchived)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived registers: %w", err)
	}
	defer rows.Close()

	var out []domain.RegisterID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.RegisterID(id))
	}
	return out, rows.Err()
}

func (s *PostgresStore) ExpiredLocks(ctx context.Context, now time.Time) ([]domain.RegisterID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM registers WHERE status = $1 AND lock_expiry < $2`,
		string(domain.StatusLocked), now)
	if err != nil {
		return nil, fmt.Errorf("list expired locks: %w", err)
	}
	defer rows.Close()

	var out []domain.RegisterID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.RegisterID(id))
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutStub(ctx context.Context, stub domain.RegisterStub) error {
	reg, err := s.Get(ctx, stub.RegisterID)
	if err != nil {
		return err
	}
	if reg.State.Status != domain.StatusArchived {
		return sentinel.ErrInvalidState
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stub tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO register_stubs (register_id, archive_id, summary_id, verification_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (register_id) DO UPDATE SET
			archive_id = EXCLUDED.archive_id,
			summary_id = EXCLUDED.summary_id,
			verification_hash = EXCLUDED.verification_hash`
	if _, err := tx.ExecContext(ctx, insert,
		string(stub.RegisterID), string(stub.ArchiveID), string(stub.SummaryID), stub.VerificationHash); err != nil {
		return fmt.Errorf("insert stub: %w", err)
	}

	const reindex = `UPDATE register_class_index SET register_id = $2 WHERE register_id = $1`
	if _, err := tx.ExecContext(ctx, reindex, string(stub.RegisterID), string(stub.SummaryID)); err != nil {
		return fmt.Errorf("reindex archived register: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) Stub(ctx context.Context, id domain.RegisterID) (domain.RegisterStub, bool, error) {
	var stub domain.RegisterStub
	var regID, archiveID, summaryID string
	err := s.db.QueryRowContext(ctx,
		`SELECT register_id, archive_id, summary_id, verification_hash FROM register_stubs WHERE register_id = $1`,
		string(id)).Scan(&regID, &archiveID, &summaryID, &stub.VerificationHash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RegisterStub{}, false, nil
	}
	if err != nil {
		return domain.RegisterStub{}, false, fmt.Errorf("load stub: %w", err)
	}
	stub.RegisterID = domain.RegisterID(regID)
	stub.ArchiveID = domain.ArchiveID(archiveID)
	stub.SummaryID = domain.RegisterID(summaryID)
	return stub, true, nil
}

func (s *PostgresStore) ByClass(ctx context.Context, class domain.ResourceClass) ([]domain.RegisterID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT register_id FROM register_class_index WHERE class = $1`, string(class))
	if err != nil {
		return nil, fmt.Errorf("resolve class: %w", err)
	}
	defer rows.Close()

	var out []domain.RegisterID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.RegisterID(id))
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegister(row rowScanner) (*domain.Register, error) {
	var (
		id, owner, status, opID, txID, archiveID string
		contentsJSON, metadataJSON               []byte
		epoch                                    int64
		lockExpiry                               sql.NullTime
		successors                               pq.StringArray
		createdAt, lastUpdated                   time.Time
	)
	if err := row.Scan(&id, &owner, &contentsJSON, &epoch, &status, &opID, &lockExpiry,
		&txID, &successors, &archiveID, &createdAt, &lastUpdated, &metadataJSON); err != nil {
		return nil, err
	}

	contents, err := domain.UnmarshalContents(contentsJSON)
	if err != nil {
		return nil, err
	}
	var metadata map[string]string
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, err
		}
	}

	state := domain.State{
		Status:        domain.Status(status),
		OperationID:   opID,
		TransactionID: domain.TransactionID(txID),
		ArchiveID:     domain.ArchiveID(archiveID),
	}
	if lockExpiry.Valid {
		state.LockExpiry = lockExpiry.Time
	}
	for _, succ := range successors {
		state.Successors = append(state.Successors, domain.RegisterID(succ))
	}

	return &domain.Register{
		ID:          domain.RegisterID(id),
		Owner:       domain.Owner(owner),
		Contents:    contents,
		Epoch:       domain.EpochID(epoch),
		State:       state,
		CreatedAt:   createdAt,
		LastUpdated: lastUpdated,
		Metadata:    metadata,
	}, nil
}

func validPredecessors(next domain.Status) []string {
	var out []string
	for _, from := range []domain.Status{domain.StatusActive, domain.StatusLocked, domain.StatusConsumed, domain.StatusArchived, domain.StatusTombstone} {
		if domain.ValidTransition(from, next) {
			out = append(out, string(from))
		}
	}
	return out
}

func registerIDs(ids []domain.RegisterID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
