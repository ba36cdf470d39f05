package store

import (
	"context"
	"fmt"
	"time"

	"netwalker/pkg/netwalker"
)

// ExpandStackMembers materializes one device row per stack/VSS member,
// named "<parent>-sw<n>" (spec.md §9 third bullet, Scenario E's
// "<parent>-SW1"/"<parent>-SW2"; the store lowercases every device name
// the same way CleanHostname does for every other row). Off by default:
// stack members otherwise remain annotations on the parent row via
// upsertStackMember and this is never called unless stack.expand_members
// is set. Each member inherits the parent's software version, per the
// collector's stack-enrichment rule (§4.5).
func (s *Store) ExpandStackMembers(ctx context.Context, parentHostname, softwareVersion string, members []netwalker.StackMember, observedAt time.Time) error {
	if len(members) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	parent := deviceName(parentHostname)
	for _, m := range members {
		childName := fmt.Sprintf("%s-sw%d", parent, m.Number)
		deviceID, err := upsertDevice(tx, childName, m.Serial, "", m.HardwareModel, observedAt)
		if err != nil {
			return fmt.Errorf("upsert stack member device %s: %w", childName, err)
		}
		if err := upsertVersion(tx, deviceID, softwareVersion, observedAt); err != nil {
			return fmt.Errorf("upsert stack member version %s: %w", childName, err)
		}
	}
	return tx.Commit()
}
