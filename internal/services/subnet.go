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

// SubnetRepository provides access to registered subnets.
type SubnetRepository interface {
	// Get returns a single subnet by ID.
	Get(ctx context.Context, id string) (*models.Subnet, error)

	// List returns a paginated list of subnets ordered by name.
	List(ctx context.Context, opts ListOptions) (*ListResult[models.Subnet], error)

	// Create inserts a new subnet. If subnet.ID is empty, a UUID is generated.
	// A second subnet with the same CIDR yields ErrAlreadyExists.
	Create(ctx context.Context, subnet *models.Subnet) error

	// Delete removes a subnet by ID. Its devices are kept, unassigned.
	Delete(ctx context.Context, id string) error
}

// Compile-time interface guard.
var _ SubnetRepository = (*SQLiteSubnetRepository)(nil)

// SQLiteSubnetRepository implements SubnetRepository using SQLite.
type SQLiteSubnetRepository struct {
	db *sql.DB
}

// NewSQLiteSubnetRepository creates a SubnetRepository.
// The inventory_subnets table must already exist (see InventoryMigrations).
func NewSQLiteSubnetRepository(db *sql.DB) *SQLiteSubnetRepository {
	return &SQLiteSubnetRepository{db: db}
}

const subnetColumns = `id, name, cidr, gateway, netmask, max_devices, location, created_at`

func (r *SQLiteSubnetRepository) Get(ctx context.Context, id string) (*models.Subnet, error) {
	var s models.Subnet
	err := r.db.QueryRowContext(ctx,
		`SELECT `+subnetColumns+` FROM inventory_subnets WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.CIDR, &s.Gateway, &s.Netmask, &s.MaxDevices, &s.Location, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subnet %q: %w", id, err)
	}
	return &s, nil
}

func (r *SQLiteSubnetRepository) List(ctx context.Context, opts ListOptions) (*ListResult[models.Subnet], error) {
	opts = normalizeListOptions(opts)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_subnets`,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count subnets: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subnetColumns+` FROM inventory_subnets ORDER BY name ASC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	defer rows.Close()

	subnets := []models.Subnet{}
	for rows.Next() {
		var s models.Subnet
		if err := rows.Scan(&s.ID, &s.Name, &s.CIDR, &s.Gateway, &s.Netmask,
			&s.MaxDevices, &s.Location, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subnet row: %w", err)
		}
		subnets = append(subnets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subnets: %w", err)
	}

	return &ListResult[models.Subnet]{Items: subnets, Total: total}, nil
}

func (r *SQLiteSubnetRepository) Create(ctx context.Context, subnet *models.Subnet) error {
	if subnet.ID == "" {
		subnet.ID = uuid.New().String()
	}
	if subnet.CreatedAt.IsZero() {
		subnet.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_subnets (`+subnetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		subnet.ID, subnet.Name, subnet.CIDR, subnet.Gateway, subnet.Netmask,
		subnet.MaxDevices, subnet.Location, subnet.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("subnet %s: %w", subnet.CIDR, ErrAlreadyExists)
		}
		return fmt.Errorf("create subnet: %w", err)
	}
	return nil
}

func (r *SQLiteSubnetRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM inventory_subnets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subnet: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
