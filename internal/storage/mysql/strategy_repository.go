package mysql

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/storage"
	"StratFlow-Chain/internal/strategy"
	"github.com/go-sql-driver/mysql"
)

// StrategyRepository stores strategies in MySQL.
type StrategyRepository struct {
	db *sql.DB
}

// NewStrategyRepository connects to MySQL and applies pending migrations.
func NewStrategyRepository(ctx context.Context, cfg Config) (*StrategyRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := &StrategyRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Create inserts a new strategy.
func (r *StrategyRepository) Create(ctx context.Context, record *storage.Record) error {
	graph, err := encodeGraph(record)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	record.CreatedAt = now
	record.UpdatedAt = now

	const stmt = `INSERT INTO strategies (id, name, description, graph, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, stmt,
		record.ID,
		record.Name,
		record.Description,
		graph,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return storage.ErrStrategyExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert strategy")
	}
	return nil
}

// Get loads one strategy.
func (r *StrategyRepository) Get(ctx context.Context, id string) (*storage.Record, error) {
	const stmt = `SELECT id, name, description, graph, created_at, updated_at
        FROM strategies WHERE id = ?`

	row := r.db.QueryRowContext(ctx, stmt, id)
	record, err := scanStrategy(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrStrategyNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query strategy")
	}
	return record, nil
}

// Update replaces the stored strategy.
func (r *StrategyRepository) Update(ctx context.Context, record *storage.Record) error {
	graph, err := encodeGraph(record)
	if err != nil {
		return err
	}

	record.UpdatedAt = time.Now().Unix()

	const stmt = `UPDATE strategies SET name = ?, description = ?, graph = ?, updated_at = ? WHERE id = ?`

	res, err := r.db.ExecContext(ctx, stmt,
		record.Name,
		record.Description,
		graph,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "update strategy")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// RowsAffected is also zero when the update is a no-op, so confirm
		// the row is actually missing.
		if _, getErr := r.Get(ctx, record.ID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// Delete removes the stored strategy.
func (r *StrategyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM strategies WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete strategy")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return storage.ErrStrategyNotFound
	}
	return nil
}

// List returns stored strategies, most recently updated first.
func (r *StrategyRepository) List(ctx context.Context, limit int) ([]*storage.Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, graph, created_at, updated_at
        FROM strategies ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query strategies")
	}
	defer rows.Close()

	records := make([]*storage.Record, 0, limit)
	for rows.Next() {
		record, err := scanStrategy(rows.Scan)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan strategy row")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate strategies")
	}
	return records, nil
}

// Snapshot returns the graph of the stored strategy.
func (r *StrategyRepository) Snapshot(ctx context.Context, id string) (*strategy.Snapshot, error) {
	record, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return record.Graph.Clone()
}

// Close closes the underlying connection pool.
func (r *StrategyRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func encodeGraph(record *storage.Record) (string, error) {
	if record == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "strategy record must not be nil")
	}
	if strings.TrimSpace(record.ID) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "strategy id must not be empty")
	}
	if strings.TrimSpace(record.Name) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "strategy name must not be empty")
	}
	encoded, err := record.Graph.Encode()
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode strategy graph")
	}
	return string(encoded), nil
}

func scanStrategy(scan func(dest ...any) error) (*storage.Record, error) {
	var record storage.Record
	var description sql.NullString
	var graph string
	if err := scan(
		&record.ID,
		&record.Name,
		&description,
		&graph,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	record.Description = description.String
	decoded, err := strategy.Decode([]byte(graph))
	if err != nil {
		return nil, err
	}
	record.Graph = *decoded
	return &record, nil
}

var _ storage.Repository = (*StrategyRepository)(nil)
