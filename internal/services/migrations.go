package services

import (
	"database/sql"

	"github.com/HerbHall/ipscope/pkg/plugin"
)

// InventoryMigrations creates the subnet and device tables owned by the
// inventory module.
func InventoryMigrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create inventory subnets and devices",
			Up: func(tx *sql.Tx) error {
				return execAll(tx,
					`CREATE TABLE inventory_subnets (
						id          TEXT PRIMARY KEY,
						name        TEXT NOT NULL,
						cidr        TEXT NOT NULL UNIQUE,
						gateway     TEXT NOT NULL DEFAULT '',
						netmask     TEXT NOT NULL DEFAULT '',
						max_devices INTEGER NOT NULL DEFAULT 0,
						location    TEXT NOT NULL DEFAULT '',
						created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE inventory_devices (
						id               TEXT PRIMARY KEY,
						name             TEXT NOT NULL,
						hostname         TEXT NOT NULL DEFAULT '',
						ip_address       TEXT NOT NULL DEFAULT '',
						mac_address      TEXT NOT NULL DEFAULT '',
						subnet_id        TEXT REFERENCES inventory_subnets(id) ON DELETE SET NULL,
						asset_type       TEXT NOT NULL DEFAULT '',
						network_level    TEXT NOT NULL DEFAULT '',
						default_gateway  TEXT NOT NULL DEFAULT '',
						netmask          TEXT NOT NULL DEFAULT '',
						notes            TEXT NOT NULL DEFAULT '',
						discovery_method TEXT NOT NULL DEFAULT 'manual',
						created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE UNIQUE INDEX idx_inventory_devices_ip
						ON inventory_devices(ip_address) WHERE ip_address <> ''`,
					`CREATE INDEX idx_inventory_devices_subnet ON inventory_devices(subnet_id)`,
				)
			},
		},
	}
}

// ScanMigrations creates the scan history table owned by the recon module.
func ScanMigrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create recon scan history",
			Up: func(tx *sql.Tx) error {
				return execAll(tx,
					`CREATE TABLE recon_scans (
						id         TEXT PRIMARY KEY,
						subnet_id  TEXT NOT NULL DEFAULT '',
						cidr       TEXT NOT NULL,
						method     TEXT NOT NULL DEFAULT '',
						started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						ended_at   DATETIME,
						status     TEXT NOT NULL DEFAULT 'running',
						total      INTEGER NOT NULL DEFAULT 0,
						online     INTEGER NOT NULL DEFAULT 0,
						registered INTEGER NOT NULL DEFAULT 0,
						new        INTEGER NOT NULL DEFAULT 0,
						error_msg  TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX idx_recon_scans_subnet ON recon_scans(subnet_id)`,
					`CREATE INDEX idx_recon_scans_started ON recon_scans(started_at)`,
				)
			},
		},
	}
}

func execAll(tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
