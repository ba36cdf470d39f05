// Package store implements the Inventory Store (spec.md §4.7): idempotent
// persistence of DeviceReports to a pure-Go SQLite database, grounded on
// the teacher pack's audit.Store pattern (single mutex-guarded *sql.DB,
// schema created on open, parameterized queries throughout).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"netwalker/pkg/netwalker"
)

// Sentinel serial/model pair reserved for placeholder devices (spec.md §9:
// "Placeholder devices").
const (
	placeholderSerial = "unknown"
	placeholderModel  = "Unwalked Neighbor"
)

// deviceName derives the device_name key for a row: serial suffix stripped,
// lowercased, and an FQDN reduced to its bare first label (spec.md §4.7
// neighbor upsert step 1). A CDP Device ID or LLDP System Name often
// carries the domain, while the walked device's prompt-extracted hostname
// is bare; keying both through the same reduction is what lets a
// placeholder created from the FQDN form be promoted by the real walk.
// IP-literal names pass through whole.
func deviceName(h string) string {
	return netwalker.NormalizeHostShort(netwalker.CleanHostname(h))
}

// Store is the Inventory Store: one writer connection, serialized by mu, to
// a modernc.org/sqlite database file.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and ensures its
// schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS devices (
	device_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	device_name     TEXT NOT NULL,
	serial_number   TEXT NOT NULL DEFAULT 'unknown',
	platform        TEXT,
	hardware_model  TEXT,
	status          TEXT NOT NULL DEFAULT 'active',
	status_reason   TEXT,
	first_seen      DATETIME NOT NULL,
	last_seen       DATETIME NOT NULL,
	UNIQUE(device_name, serial_number)
);

CREATE TABLE IF NOT EXISTS device_versions (
	device_id        INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
	software_version TEXT NOT NULL,
	first_seen       DATETIME NOT NULL,
	last_seen        DATETIME NOT NULL,
	UNIQUE(device_id, software_version)
);

CREATE TABLE IF NOT EXISTS device_interfaces (
	interface_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id      INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
	interface_name TEXT NOT NULL,
	ip_address     TEXT NOT NULL DEFAULT '',
	subnet_mask    TEXT,
	interface_type TEXT,
	first_seen     DATETIME NOT NULL,
	last_seen      DATETIME NOT NULL,
	UNIQUE(device_id, interface_name, ip_address)
);

CREATE TABLE IF NOT EXISTS vlans (
	vlan_number INTEGER NOT NULL,
	vlan_name   TEXT NOT NULL,
	first_seen  DATETIME NOT NULL,
	last_seen   DATETIME NOT NULL,
	UNIQUE(vlan_number, vlan_name)
);

CREATE TABLE IF NOT EXISTS device_vlans (
	device_id  INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
	vlan_number INTEGER NOT NULL,
	vlan_name  TEXT NOT NULL,
	port_count INTEGER NOT NULL DEFAULT 0,
	first_seen DATETIME NOT NULL,
	last_seen  DATETIME NOT NULL,
	UNIQUE(device_id, vlan_number)
);

CREATE TABLE IF NOT EXISTS device_neighbors (
	neighbor_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_device_id      INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
	source_interface      TEXT NOT NULL,
	destination_device_id INTEGER NOT NULL REFERENCES devices(device_id),
	destination_interface TEXT NOT NULL,
	protocol              TEXT,
	first_seen            DATETIME NOT NULL,
	last_seen             DATETIME NOT NULL,
	UNIQUE(source_device_id, source_interface, destination_device_id, destination_interface)
);

CREATE TABLE IF NOT EXISTS stack_members (
	device_id      INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
	member_number  INTEGER NOT NULL,
	role           TEXT,
	hardware_model TEXT,
	serial         TEXT,
	first_seen     DATETIME NOT NULL,
	last_seen      DATETIME NOT NULL,
	UNIQUE(device_id, member_number)
);

CREATE TABLE IF NOT EXISTS ipv4_prefixes (
	prefix_id  INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id  INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
	vrf        TEXT NOT NULL DEFAULT 'global',
	cidr       TEXT NOT NULL,
	source     TEXT NOT NULL,
	protocol   TEXT,
	first_seen DATETIME NOT NULL,
	last_seen  DATETIME NOT NULL,
	UNIQUE(device_id, vrf, cidr, source)
);

CREATE TABLE IF NOT EXISTS ipv4_prefix_summarization (
	vrf            TEXT NOT NULL,
	summary_cidr   TEXT NOT NULL,
	component_cidr TEXT NOT NULL,
	device_id      INTEGER NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
	UNIQUE(vrf, summary_cidr, component_cidr, device_id)
);

CREATE TABLE IF NOT EXISTS parse_exceptions (
	exception_id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_name  TEXT,
	vrf          TEXT,
	source       TEXT,
	raw_text     TEXT,
	reason       TEXT,
	created_at   DATETIME NOT NULL
);
`

func (s *Store) initializeSchema() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// InitializeSchema is the control-plane "initialize-schema" command; it is
// idempotent and safe to call against an already-initialized database.
func (s *Store) InitializeSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeSchema()
}

// upsertDevice implements the three-case device upsert from spec.md §4.7.
// It must run inside tx so the caller's full report write is atomic.
func upsertDevice(tx *sql.Tx, hostname, serial, platform, model string, observedAt time.Time) (int64, error) {
	hostname = deviceName(hostname)
	if serial == "" {
		serial = placeholderSerial
	}

	var id int64
	err := tx.QueryRow(
		`SELECT device_id FROM devices WHERE device_name = ? AND serial_number = ?`,
		hostname, serial,
	).Scan(&id)
	switch {
	case err == nil:
		_, err = tx.Exec(
			`UPDATE devices SET platform = ?, hardware_model = ?, status = 'connected', status_reason = NULL, last_seen = ? WHERE device_id = ?`,
			platform, model, observedAt, id,
		)
		return id, err
	case err != sql.ErrNoRows:
		return 0, err
	}

	if serial != placeholderSerial {
		var placeholderID int64
		err := tx.QueryRow(
			`SELECT device_id FROM devices WHERE device_name = ? AND serial_number = ?`,
			hostname, placeholderSerial,
		).Scan(&placeholderID)
		if err == nil {
			_, err = tx.Exec(
				`UPDATE devices SET serial_number = ?, platform = ?, hardware_model = ?, status = 'connected', status_reason = NULL, last_seen = ? WHERE device_id = ?`,
				serial, platform, model, observedAt, placeholderID,
			)
			return placeholderID, err
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
	}

	res, err := tx.Exec(
		`INSERT INTO devices (device_name, serial_number, platform, hardware_model, status, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, 'connected', ?, ?)`,
		hostname, serial, platform, model, observedAt, observedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func upsertVersion(tx *sql.Tx, deviceID int64, version string, observedAt time.Time) error {
	if strings.TrimSpace(version) == "" {
		return nil
	}
	_, err := tx.Exec(
		`INSERT INTO device_versions (device_id, software_version, first_seen, last_seen)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_id, software_version) DO UPDATE SET last_seen = excluded.last_seen`,
		deviceID, version, observedAt, observedAt,
	)
	return err
}

func upsertInterface(tx *sql.Tx, deviceID int64, iface netwalker.Interface, observedAt time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO device_interfaces (device_id, interface_name, ip_address, subnet_mask, interface_type, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id, interface_name, ip_address) DO UPDATE SET
		   subnet_mask = excluded.subnet_mask, interface_type = excluded.interface_type, last_seen = excluded.last_seen`,
		deviceID, iface.Name, iface.IPv4Address, iface.IPv4Mask, string(iface.Type), observedAt, observedAt,
	)
	return err
}

// upsertPrimaryManagementIP writes the synthetic interface row described in
// spec.md §4.7, enabling later database-driven re-walks of hostname-only
// seeds.
func upsertPrimaryManagementIP(tx *sql.Tx, deviceID int64, primaryIP string, observedAt time.Time) error {
	if primaryIP == "" || !netwalker.IsRoutableIP(primaryIP) {
		return nil
	}
	_, err := tx.Exec(
		`INSERT INTO device_interfaces (device_id, interface_name, ip_address, subnet_mask, interface_type, first_seen, last_seen)
		 VALUES (?, 'Primary Management', ?, '', 'management', ?, ?)
		 ON CONFLICT(device_id, interface_name, ip_address) DO UPDATE SET last_seen = excluded.last_seen`,
		deviceID, primaryIP, observedAt, observedAt,
	)
	return err
}

// upsertVLAN maintains both the global vlan table and the per-device link,
// implementing the name-reconciliation rule from spec.md §4.7/§8 property 8.
func upsertVLAN(tx *sql.Tx, deviceID int64, vlan netwalker.VLAN, observedAt time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO vlans (vlan_number, vlan_name, first_seen, last_seen)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(vlan_number, vlan_name) DO UPDATE SET last_seen = excluded.last_seen`,
		vlan.Number, vlan.Name, observedAt, observedAt,
	)
	if err != nil {
		return err
	}

	var existingName string
	err = tx.QueryRow(
		`SELECT vlan_name FROM device_vlans WHERE device_id = ? AND vlan_number = ?`,
		deviceID, vlan.Number,
	).Scan(&existingName)
	switch {
	case err == nil:
		if existingName == vlan.Name {
			_, err = tx.Exec(
				`UPDATE device_vlans SET port_count = ?, last_seen = ? WHERE device_id = ? AND vlan_number = ?`,
				vlan.PortCount, observedAt, deviceID, vlan.Number,
			)
			return err
		}
		if _, err := tx.Exec(`DELETE FROM device_vlans WHERE device_id = ? AND vlan_number = ?`, deviceID, vlan.Number); err != nil {
			return err
		}
	case err != sql.ErrNoRows:
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO device_vlans (device_id, vlan_number, vlan_name, port_count, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		deviceID, vlan.Number, vlan.Name, vlan.PortCount, observedAt, observedAt,
	)
	return err
}

func upsertStackMember(tx *sql.Tx, deviceID int64, member netwalker.StackMember, observedAt time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO stack_members (device_id, member_number, role, hardware_model, serial, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id, member_number) DO UPDATE SET
		   role = excluded.role, hardware_model = excluded.hardware_model, serial = excluded.serial, last_seen = excluded.last_seen`,
		deviceID, member.Number, string(member.Role), member.HardwareModel, member.Serial, observedAt, observedAt,
	)
	return err
}

// representativeSerial picks the device-row serial for a (possibly stacked)
// report: the first stack member's serial when stacked, the identity serial
// otherwise.
func representativeSerial(report netwalker.DeviceReport) string {
	if len(report.Serials) > 0 && strings.TrimSpace(report.Serials[0]) != "" {
		return report.Serials[0]
	}
	return ""
}

// WriteDeviceReport persists a fully collected device: the device row
// itself, its version/interface/VLAN/stack rows, its neighbor links, and
// (if present) its observed IPv4 prefixes. The whole write is one
// transaction.
func (s *Store) WriteDeviceReport(ctx context.Context, report netwalker.DeviceReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	observedAt := report.CollectedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	deviceID, err := upsertDevice(tx, report.Hostname, representativeSerial(report), report.Platform, report.HardwareModel, observedAt)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", report.Hostname, err)
	}

	if err := upsertVersion(tx, deviceID, report.SoftwareVersion, observedAt); err != nil {
		return fmt.Errorf("upsert version: %w", err)
	}

	for _, iface := range report.Interfaces {
		if err := upsertInterface(tx, deviceID, iface, observedAt); err != nil {
			return fmt.Errorf("upsert interface %s: %w", iface.Name, err)
		}
	}
	if err := upsertPrimaryManagementIP(tx, deviceID, report.PrimaryIP, observedAt); err != nil {
		return fmt.Errorf("upsert primary management ip: %w", err)
	}

	for _, vlan := range report.VLANs {
		if err := upsertVLAN(tx, deviceID, vlan, observedAt); err != nil {
			return fmt.Errorf("upsert vlan %d: %w", vlan.Number, err)
		}
	}

	for _, member := range report.StackMembers {
		if err := upsertStackMember(tx, deviceID, member, observedAt); err != nil {
			return fmt.Errorf("upsert stack member %d: %w", member.Number, err)
		}
	}

	for _, nb := range report.Neighbors {
		if err := upsertNeighbor(tx, deviceID, nb, observedAt); err != nil {
			return fmt.Errorf("upsert neighbor %s: %w", nb.RemoteHostname, err)
		}
	}

	if len(report.Prefixes) > 0 {
		if err := upsertPrefixes(tx, deviceID, report.Prefixes, observedAt); err != nil {
			return fmt.Errorf("upsert prefixes: %w", err)
		}
	}

	for _, exc := range report.ParseExceptions {
		if err := insertParseException(tx, report.Hostname, exc, observedAt); err != nil {
			return fmt.Errorf("insert parse exception: %w", err)
		}
	}

	return tx.Commit()
}

// WriteSkip records a terminal disposition for a device that was never
// fully collected (filtered, skipped, connect_failed, or collect_failed).
// It still creates or touches a device row so every observed endpoint has
// exactly one final-disposition row (spec.md §7).
func (s *Store) WriteSkip(ctx context.Context, ep netwalker.Endpoint, status netwalker.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hostname := deviceName(firstNonEmpty(ep.HostnameHint, ep.Host))
	if hostname == "" {
		hostname = ep.PrimaryIP
	}
	if hostname == "" {
		return nil
	}
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(
		`SELECT device_id FROM devices WHERE device_name = ? ORDER BY last_seen DESC LIMIT 1`,
		hostname,
	).Scan(&id)
	switch {
	case err == nil:
		_, err = tx.Exec(
			`UPDATE devices SET status = ?, status_reason = ?, last_seen = ? WHERE device_id = ?`,
			string(status.Kind), status.Reason, now, id,
		)
		if err != nil {
			return err
		}
	case err == sql.ErrNoRows:
		_, err = tx.Exec(
			`INSERT INTO devices (device_name, serial_number, status, status_reason, first_seen, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			hostname, placeholderSerial, string(status.Kind), status.Reason, now, now,
		)
		if err != nil {
			return err
		}
	default:
		return err
	}

	return tx.Commit()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
