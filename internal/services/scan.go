package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/ipscope/pkg/models"
)

// Scan status values.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// ScanRepository provides access to the scan history.
type ScanRepository interface {
	// Get returns a single scan by ID.
	Get(ctx context.Context, id string) (*models.ScanRecord, error)

	// List returns a paginated list of scans ordered by start time,
	// optionally restricted to one subnet.
	List(ctx context.Context, subnetID string, opts ListOptions) (*ListResult[models.ScanRecord], error)

	// Create inserts a new scan record. If scan.ID is empty, a UUID is generated.
	Create(ctx context.Context, scan *models.ScanRecord) error

	// Complete stores the final counts and status of a scan.
	Complete(ctx context.Context, scan *models.ScanRecord) error
}

// Compile-time interface guard.
var _ ScanRepository = (*SQLiteScanRepository)(nil)

// SQLiteScanRepository implements ScanRepository using SQLite.
// It queries the recon_scans table directly.
type SQLiteScanRepository struct {
	db *sql.DB
}

// NewSQLiteScanRepository creates a ScanRepository.
// The recon_scans table must already exist (see ScanMigrations).
func NewSQLiteScanRepository(db *sql.DB) *SQLiteScanRepository {
	return &SQLiteScanRepository{db: db}
}

const scanColumns = `id, subnet_id, cidr, method, started_at, ended_at, status,
	total, online, registered, new, error_msg`

func (r *SQLiteScanRepository) Get(ctx context.Context, id string) (*models.ScanRecord, error) {
	scan, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM recon_scans WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scan %q: %w", id, err)
	}
	return scan, nil
}

func (r *SQLiteScanRepository) List(ctx context.Context, subnetID string, opts ListOptions) (*ListResult[models.ScanRecord], error) {
	opts = normalizeListOptions(opts)

	where := "1=1"
	var args []any
	if subnetID != "" {
		where += " AND subnet_id = ?"
		args = append(args, subnetID)
	}

	var total int
	//nolint:gosec // where uses parameterized placeholders only
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM recon_scans WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count scans: %w", err)
	}

	// Scans are always ordered by started_at.
	orderDir := "DESC"
	if opts.SortOrder == "asc" {
		orderDir = "ASC"
	}

	//nolint:gosec // where and orderDir are validated above
	query := fmt.Sprintf(
		`SELECT %s FROM recon_scans WHERE %s ORDER BY started_at %s, id %s LIMIT ? OFFSET ?`,
		scanColumns, where, orderDir, orderDir)

	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	scans := []models.ScanRecord{}
	for rows.Next() {
		scan, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scans = append(scans, *scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}

	return &ListResult[models.ScanRecord]{Items: scans, Total: total}, nil
}

func (r *SQLiteScanRepository) Create(ctx context.Context, scan *models.ScanRecord) error {
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	if scan.StartedAt == "" {
		scan.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if scan.Status == "" {
		scan.Status = ScanStatusRunning
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recon_scans (id, subnet_id, cidr, method, started_at, status, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.SubnetID, scan.CIDR, scan.Method, scan.StartedAt, scan.Status, scan.Total,
	)
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

func (r *SQLiteScanRepository) Complete(ctx context.Context, scan *models.ScanRecord) error {
	if scan.EndedAt == "" {
		scan.EndedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if scan.Status == "" || scan.Status == ScanStatusRunning {
		scan.Status = ScanStatusCompleted
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE recon_scans SET
			ended_at = ?, status = ?, total = ?, online = ?,
			registered = ?, new = ?, error_msg = ?
		WHERE id = ?`,
		scan.EndedAt, scan.Status, scan.Total, scan.Online,
		scan.Registered, scan.New, scan.ErrorMsg, scan.ID,
	)
	if err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row rowScanner) (*models.ScanRecord, error) {
	var s models.ScanRecord
	var startedAt string
	var endedAt sql.NullString
	err := row.Scan(&s.ID, &s.SubnetID, &s.CIDR, &s.Method, &startedAt, &endedAt, &s.Status,
		&s.Total, &s.Online, &s.Registered, &s.New, &s.ErrorMsg)
	if err != nil {
		return nil, err
	}
	s.StartedAt = startedAt
	if endedAt.Valid {
		s.EndedAt = endedAt.String
	}
	return &s, nil
}
