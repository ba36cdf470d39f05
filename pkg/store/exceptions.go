package store

import (
	"database/sql"
	"time"

	"netwalker/pkg/netwalker"
)

// insertParseException records one unresolved or invalid prefix line into
// parse_exceptions (spec.md §4.8 steps 6-7: invalid networks and
// unresolved BGP ambiguities are "recorded", not silently dropped).
func insertParseException(tx *sql.Tx, deviceName string, exc netwalker.PrefixException, createdAt time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO parse_exceptions (device_name, vrf, source, raw_text, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		deviceName, exc.VRF, exc.Source, exc.RawLine, exc.Reason, createdAt,
	)
	return err
}
