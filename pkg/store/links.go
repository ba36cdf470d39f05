package store

import (
	"database/sql"
	"time"

	"netwalker/pkg/netwalker"
)

// resolveNeighborDevice resolves a neighbor's remote hostname to a device_id,
// creating a placeholder device row if none exists yet (spec.md §4.7 step 1
// of neighbor/link upsert; §9 "Placeholder devices").
func resolveNeighborDevice(tx *sql.Tx, nb netwalker.Neighbor, observedAt time.Time) (int64, error) {
	// Strip the FQDN to its bare label before the lookup: the walked
	// device's own row is keyed by its prompt-extracted bare hostname, and
	// a domain-qualified Device ID must resolve to that same row or its
	// placeholder would never be promoted.
	hostname := deviceName(nb.RemoteHostname)
	if hostname == "" {
		hostname = nb.RemoteIP
	}
	if hostname == "" {
		return 0, sql.ErrNoRows
	}

	var id int64
	err := tx.QueryRow(
		`SELECT device_id FROM devices WHERE device_name = ? ORDER BY last_seen DESC LIMIT 1`,
		hostname,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := tx.Exec(
		`INSERT INTO devices (device_name, serial_number, hardware_model, status, first_seen, last_seen)
		 VALUES (?, ?, ?, 'neighbor_only', ?, ?)`,
		hostname, placeholderSerial, placeholderModel, observedAt, observedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// upsertNeighbor implements the canonical-direction link upsert from
// spec.md §4.7 steps 2-4, given the already-resolved local device's id.
func upsertNeighbor(tx *sql.Tx, localDeviceID int64, nb netwalker.Neighbor, observedAt time.Time) error {
	remoteDeviceID, err := resolveNeighborDevice(tx, nb, observedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil // neighbor carried no usable identity; nothing to link
		}
		return err
	}
	if remoteDeviceID == localDeviceID {
		return nil // a device reporting itself as its own neighbor is not a link
	}

	srcID, srcIface, dstID, dstIface := localDeviceID, nb.LocalInterface, remoteDeviceID, nb.RemoteInterface
	if remoteDeviceID < localDeviceID {
		srcID, srcIface, dstID, dstIface = remoteDeviceID, nb.RemoteInterface, localDeviceID, nb.LocalInterface
	}

	var existingID int64
	err = tx.QueryRow(
		`SELECT neighbor_id FROM device_neighbors
		 WHERE (source_device_id = ? AND source_interface = ? AND destination_device_id = ? AND destination_interface = ?)
		    OR (source_device_id = ? AND source_interface = ? AND destination_device_id = ? AND destination_interface = ?)`,
		srcID, srcIface, dstID, dstIface,
		dstID, dstIface, srcID, srcIface,
	).Scan(&existingID)
	switch {
	case err == nil:
		_, err = tx.Exec(`UPDATE device_neighbors SET last_seen = ?, protocol = ? WHERE neighbor_id = ?`, observedAt, nb.Protocol, existingID)
		return err
	case err != sql.ErrNoRows:
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO device_neighbors (source_device_id, source_interface, destination_device_id, destination_interface, protocol, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		srcID, srcIface, dstID, dstIface, nb.Protocol, observedAt, observedAt,
	)
	return err
}
