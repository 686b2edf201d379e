// ./internal/state/decision_store.go
package state

import (
	"fmt"

	"github.com/openyield/yvm/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveRebalanceDecision persists an executed rebalance decision.
func SaveRebalanceDecision(record types.RebalanceRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO rebalance_decisions (
			cycle_id, pool_id, from_index, to_index,
			from_protocol, to_protocol, from_score, to_score, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING record_id;
	`

	var recordID int64
	err := DB.QueryRow(
		query,
		record.CycleID, uint64(record.Pool), record.FromIndex, record.ToIndex,
		record.FromProtocol, record.ToProtocol, record.FromScore, record.ToScore, record.DecidedAt,
	).Scan(&recordID)

	if err != nil {
		return 0, fmt.Errorf("failed to save rebalance decision: %w", err)
	}

	log.Info().
		Int64("record_id", recordID).
		Str("from_protocol", record.FromProtocol).
		Str("to_protocol", record.ToProtocol).
		Msg("Rebalance decision saved to database")

	return recordID, nil
}

// GetRecentDecisions returns the most recent rebalance decisions, newest first.
func GetRecentDecisions(limit int) ([]types.RebalanceRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT record_id, cycle_id, pool_id, from_index, to_index,
			from_protocol, to_protocol, from_score, to_score, decided_at
		FROM rebalance_decisions
		ORDER BY decided_at DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance decisions: %w", err)
	}
	defer rows.Close()

	var records []types.RebalanceRecord
	for rows.Next() {
		var r types.RebalanceRecord
		var poolID uint64
		err := rows.Scan(
			&r.RecordID, &r.CycleID, &poolID, &r.FromIndex, &r.ToIndex,
			&r.FromProtocol, &r.ToProtocol, &r.FromScore, &r.ToScore, &r.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rebalance decision row: %w", err)
		}
		r.Pool = types.PoolID(poolID)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rebalance decision rows: %w", err)
	}

	return records, nil
}
