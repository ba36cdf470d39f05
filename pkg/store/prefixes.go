package store

import (
	"database/sql"
	"time"

	"netwalker/pkg/netwalker"
)

// upsertPrefixes writes one device's observed prefixes (deduplicated by
// device-level key per spec.md §4.8 step 8 via the table's UNIQUE
// constraint) and recomputes the per-VRF summarization relations.
func upsertPrefixes(tx *sql.Tx, deviceID int64, prefixes []netwalker.Prefix, observedAt time.Time) error {
	byVRF := make(map[string][]netwalker.Prefix)
	for _, p := range prefixes {
		_, err := tx.Exec(
			`INSERT INTO ipv4_prefixes (device_id, vrf, cidr, source, protocol, first_seen, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(device_id, vrf, cidr, source) DO UPDATE SET protocol = excluded.protocol, last_seen = excluded.last_seen`,
			deviceID, p.VRF, p.CIDR, p.Source, p.Protocol, observedAt, observedAt,
		)
		if err != nil {
			return err
		}
		byVRF[p.VRF] = append(byVRF[p.VRF], p)
	}

	for vrf, group := range byVRF {
		cidrs := make([]string, 0, len(group))
		seen := make(map[string]struct{}, len(group))
		for _, p := range group {
			if _, ok := seen[p.CIDR]; ok {
				continue
			}
			seen[p.CIDR] = struct{}{}
			cidrs = append(cidrs, p.CIDR)
		}

		if _, err := tx.Exec(`DELETE FROM ipv4_prefix_summarization WHERE device_id = ? AND vrf = ?`, deviceID, vrf); err != nil {
			return err
		}
		for _, rel := range netwalker.FindSummarizations(cidrs) {
			_, err := tx.Exec(
				`INSERT INTO ipv4_prefix_summarization (vrf, summary_cidr, component_cidr, device_id)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT(vrf, summary_cidr, component_cidr, device_id) DO NOTHING`,
				vrf, rel.Summary, rel.Component, deviceID,
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// PrefixAggregate is the cross-device view of one (vrf, cidr) pair (spec.md
// §4.8 step 8: "cross-device aggregation key with accumulated device list").
type PrefixAggregate struct {
	VRF      string
	CIDR     string
	DeviceID []int64
}

// AggregatePrefixes returns the cross-device device lists for every distinct
// (vrf, cidr) pair currently stored.
func (s *Store) AggregatePrefixes() ([]PrefixAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT vrf, cidr, device_id FROM ipv4_prefixes ORDER BY vrf, cidr, device_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[string]*PrefixAggregate)
	var order []string
	for rows.Next() {
		var vrf, cidr string
		var deviceID int64
		if err := rows.Scan(&vrf, &cidr, &deviceID); err != nil {
			return nil, err
		}
		key := netwalker.PrefixAggregateKey(vrf, cidr)
		agg, ok := byKey[key]
		if !ok {
			agg = &PrefixAggregate{VRF: vrf, CIDR: cidr}
			byKey[key] = agg
			order = append(order, key)
		}
		agg.DeviceID = append(agg.DeviceID, deviceID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]PrefixAggregate, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}
