// ./internal/state/audit_store.go
package state

import (
	"fmt"

	"github.com/openyield/yvm/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveRoleAuditEntry persists a role change for the audit trail.
func SaveRoleAuditEntry(entry types.RoleAuditEntry) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO role_audit (pool_id, actor, subject, role, action, audit_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING entry_id;
	`

	var entryID int64
	err := DB.QueryRow(
		query,
		uint64(entry.Pool), string(entry.Actor), string(entry.Subject),
		uint8(entry.Role), entry.Action, entry.Timestamp,
	).Scan(&entryID)

	if err != nil {
		return 0, fmt.Errorf("failed to save role audit entry: %w", err)
	}

	log.Info().
		Int64("entry_id", entryID).
		Str("actor", string(entry.Actor)).
		Str("action", entry.Action).
		Msg("Role audit entry saved to database")

	return entryID, nil
}

// GetRecentAuditEntries returns the most recent role audit entries, newest first.
func GetRecentAuditEntries(limit int) ([]types.RoleAuditEntry, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT entry_id, pool_id, actor, subject, role, action, audit_timestamp
		FROM role_audit
		ORDER BY audit_timestamp DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query role audit entries: %w", err)
	}
	defer rows.Close()

	var entries []types.RoleAuditEntry
	for rows.Next() {
		var e types.RoleAuditEntry
		var poolID uint64
		var actor, subject string
		var role uint8
		err := rows.Scan(&e.EntryID, &poolID, &actor, &subject, &role, &e.Action, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role audit row: %w", err)
		}
		e.Pool = types.PoolID(poolID)
		e.Actor = types.Identity(actor)
		e.Subject = types.Identity(subject)
		e.Role = types.Role(role)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role audit rows: %w", err)
	}

	return entries, nil
}
