package store

import (
	"time"

	"netwalker/pkg/netwalker"
)

// PurgeAll deletes every row from every table (spec.md §6 "purge-all"),
// removing neighbor rows before device rows to honor referential integrity.
func (s *Store) PurgeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tables := []string{
		"ipv4_prefix_summarization",
		"ipv4_prefixes",
		"device_neighbors",
		"stack_members",
		"device_vlans",
		"vlans",
		"device_interfaces",
		"device_versions",
		"devices",
		"parse_exceptions",
	}
	for _, t := range tables {
		if _, err := tx.Exec("DELETE FROM " + t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PurgeMarked removes devices with status = 'purge' (spec.md §6
// "purge-marked"); child rows cascade via the foreign keys declared on the
// schema (ON DELETE CASCADE for source-side neighbor links, interfaces,
// versions, stack members).
func (s *Store) PurgeMarked() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM devices WHERE status = 'purge'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkForPurge sets status = 'purge' on a device by cleaned hostname,
// the soft-delete half of the Device lifecycle (spec.md §3 Device entity).
func (s *Store) MarkForPurge(hostname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE devices SET status = 'purge' WHERE device_name = ?`,
		deviceName(hostname),
	)
	return err
}

// CleanupStaleLinks removes neighbor rows whose last_seen predates
// now - days (spec.md §4.7 "Stale GC").
func (s *Store) CleanupStaleLinks(days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := s.db.Exec(`DELETE FROM device_neighbors WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatusCounts maps table name to row count, the "show-status" control-plane
// command (spec.md §6).
type StatusCounts map[string]int64

var statusTables = []string{
	"devices", "device_versions", "device_interfaces", "vlans", "device_vlans",
	"device_neighbors", "stack_members", "ipv4_prefixes", "ipv4_prefix_summarization",
	"parse_exceptions",
}

// ShowStatus returns a row count per table.
func (s *Store) ShowStatus() (StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(StatusCounts, len(statusTables))
	for _, t := range statusTables {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + t).Scan(&n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, nil
}

// SeedFromStale produces a re-walk seed list: all active (non-placeholder)
// devices whose last_seen predates now - days (spec.md §6 "database-driven
// discovery").
func (s *Store) SeedFromStale(days int) ([]netwalker.PendingNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.Query(
		`SELECT d.device_name, COALESCE(i.ip_address, '')
		 FROM devices d
		 LEFT JOIN device_interfaces i ON i.device_id = d.device_id AND i.interface_name = 'Primary Management'
		 WHERE d.serial_number != ? AND d.last_seen < ? AND d.status != 'purge'`,
		placeholderSerial, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSeedRows(rows)
}

// SeedUnwalked produces the "walk unwalked" seed list: every placeholder
// device (spec.md §6).
func (s *Store) SeedUnwalked() ([]netwalker.PendingNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT d.device_name, COALESCE(i.ip_address, '')
		 FROM devices d
		 LEFT JOIN device_interfaces i ON i.device_id = d.device_id AND i.interface_name = 'Primary Management'
		 WHERE d.serial_number = ? AND d.status != 'purge'`,
		placeholderSerial,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSeedRows(rows)
}

func scanSeedRows(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]netwalker.PendingNode, error) {
	var out []netwalker.PendingNode
	for rows.Next() {
		var hostname, ip string
		if err := rows.Scan(&hostname, &ip); err != nil {
			return nil, err
		}
		out = append(out, netwalker.PendingNode{
			Endpoint: netwalker.Endpoint{
				Host:         firstNonEmpty(ip, hostname),
				HostnameHint: hostname,
				PrimaryIP:    ip,
			},
			Depth:           0,
			DiscoveryMethod: netwalker.DiscoverySeed,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
