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

// DeviceFilter controls which devices are returned by List.
type DeviceFilter struct {
	SubnetID string // Restrict to one subnet.
	Search   string // Search name, hostname, IP address, or MAC address.
}

// DeviceRepository provides CRUD access to registered devices.
type DeviceRepository interface {
	// Get returns a single device by ID.
	Get(ctx context.Context, id string) (*models.Device, error)

	// List returns a filtered, paginated list of devices.
	List(ctx context.Context, filter DeviceFilter, opts ListOptions) (*ListResult[models.Device], error)

	// Create inserts a new device. If device.ID is empty, a UUID is generated.
	// An IP address already held by another device yields ErrAlreadyExists.
	Create(ctx context.Context, device *models.Device) error

	// Update modifies an existing device's mutable fields.
	Update(ctx context.Context, device *models.Device) error

	// Delete removes a device by ID.
	Delete(ctx context.Context, id string) error

	// FindByIP returns the device holding ip anywhere in the inventory.
	FindByIP(ctx context.Context, ip string) (*models.Device, error)

	// ListBySubnet returns every device assigned to subnetID that has an
	// IP address.
	ListBySubnet(ctx context.Context, subnetID string) ([]models.Device, error)

	// UsedIPs returns the distinct non-empty IP addresses assigned to
	// subnetID.
	UsedIPs(ctx context.Context, subnetID string) ([]string, error)
}

// Compile-time interface guard.
var _ DeviceRepository = (*SQLiteDeviceRepository)(nil)

// SQLiteDeviceRepository implements DeviceRepository using SQLite.
// It queries the inventory_devices table directly.
type SQLiteDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceRepository creates a DeviceRepository.
// The inventory_devices table must already exist (see InventoryMigrations).
func NewSQLiteDeviceRepository(db *sql.DB) *SQLiteDeviceRepository {
	return &SQLiteDeviceRepository{db: db}
}

// deviceColumns is the shared column list for device queries.
const deviceColumns = `id, name, hostname, ip_address, mac_address, subnet_id,
	asset_type, network_level, default_gateway, netmask, notes,
	discovery_method, created_at`

func (r *SQLiteDeviceRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM inventory_devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %q: %w", id, err)
	}
	return d, nil
}

func (r *SQLiteDeviceRepository) List(ctx context.Context, filter DeviceFilter, opts ListOptions) (*ListResult[models.Device], error) {
	opts = normalizeListOptions(opts)

	// Validate sortBy against allowed columns.
	sortCol := "created_at"
	allowedSorts := map[string]string{
		"name":       "name",
		"hostname":   "hostname",
		"ip_address": "ip_address",
		"created_at": "created_at",
	}
	if opts.SortBy != "" {
		if col, ok := allowedSorts[opts.SortBy]; ok {
			sortCol = col
		}
	}

	// Build WHERE clause with parameterized placeholders.
	where := "1=1"
	var args []any

	if filter.SubnetID != "" {
		where += " AND subnet_id = ?"
		args = append(args, filter.SubnetID)
	}
	if filter.Search != "" {
		where += " AND (name LIKE ? OR hostname LIKE ? OR ip_address LIKE ? OR mac_address LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	// Count total matching rows.
	var total int
	//nolint:gosec // where uses parameterized placeholders only
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM inventory_devices WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count devices: %w", err)
	}

	queryArgs := make([]any, 0, len(args)+2)
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, opts.Limit, opts.Offset)

	orderDir := "DESC"
	if opts.SortOrder == "asc" {
		orderDir = "ASC"
	}

	//nolint:gosec // where and sortCol are validated above, not user input
	query := fmt.Sprintf(
		"SELECT %s FROM inventory_devices WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?",
		deviceColumns, where, sortCol, orderDir,
	)

	devices, err := r.query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return &ListResult[models.Device]{Items: devices, Total: total}, nil
}

func (r *SQLiteDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	if device.DiscoveryMethod == "" {
		device.DiscoveryMethod = models.DiscoveryManual
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID, device.Name, device.Hostname, device.IPAddress, device.MACAddress, nullString(device.SubnetID),
		device.AssetType, device.NetworkLevel, device.DefaultGateway, device.Netmask, device.Notes,
		string(device.DiscoveryMethod), device.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ip address %s: %w", device.IPAddress, ErrAlreadyExists)
		}
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (r *SQLiteDeviceRepository) Update(ctx context.Context, device *models.Device) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE inventory_devices SET
			name = ?, hostname = ?, ip_address = ?, mac_address = ?, subnet_id = ?,
			asset_type = ?, network_level = ?, default_gateway = ?, netmask = ?, notes = ?
		WHERE id = ?`,
		device.Name, device.Hostname, device.IPAddress, device.MACAddress, nullString(device.SubnetID),
		device.AssetType, device.NetworkLevel, device.DefaultGateway, device.Netmask, device.Notes,
		device.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ip address %s: %w", device.IPAddress, ErrAlreadyExists)
		}
		return fmt.Errorf("update device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteDeviceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM inventory_devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteDeviceRepository) FindByIP(ctx context.Context, ip string) (*models.Device, error) {
	if ip == "" {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM inventory_devices WHERE ip_address = ?`, ip)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find device by ip %q: %w", ip, err)
	}
	return d, nil
}

func (r *SQLiteDeviceRepository) ListBySubnet(ctx context.Context, subnetID string) ([]models.Device, error) {
	devices, err := r.query(ctx,
		`SELECT `+deviceColumns+` FROM inventory_devices
		WHERE subnet_id = ? AND ip_address <> '' ORDER BY created_at ASC`, subnetID)
	if err != nil {
		return nil, fmt.Errorf("list devices in subnet %q: %w", subnetID, err)
	}
	return devices, nil
}

func (r *SQLiteDeviceRepository) UsedIPs(ctx context.Context, subnetID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ip_address FROM inventory_devices
		WHERE subnet_id = ? AND ip_address <> ''`, subnetID)
	if err != nil {
		return nil, fmt.Errorf("used ips in subnet %q: %w", subnetID, err)
	}
	defer rows.Close()

	ips := []string{}
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("scan ip row: %w", err)
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ips: %w", err)
	}
	return ips, nil
}

func (r *SQLiteDeviceRepository) query(ctx context.Context, query string, args ...any) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var subnetID sql.NullString
	var method string
	err := row.Scan(
		&d.ID, &d.Name, &d.Hostname, &d.IPAddress, &d.MACAddress, &subnetID,
		&d.AssetType, &d.NetworkLevel, &d.DefaultGateway, &d.Netmask, &d.Notes,
		&method, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.SubnetID = subnetID.String
	d.DiscoveryMethod = models.DiscoveryMethod(method)
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
