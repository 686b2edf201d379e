// ./internal/state/snapshot_store.go
package state

import (
	"fmt"

	"github.com/openyield/yvm/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_id, pool_id, snapshot_timestamp,
			total_assets, total_shares, share_price, total_yield, accumulated_fees, num_users,
			current_opportunity, best_opportunity, current_score, best_score,
			harvested_yield, rebalanced
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err := DB.QueryRow(
		query,
		snapshot.CycleID, uint64(snapshot.Pool), snapshot.Timestamp,
		snapshot.TotalAssets, snapshot.TotalShares, snapshot.SharePrice, snapshot.TotalYield, snapshot.AccumulatedFees, snapshot.NumUsers,
		snapshot.CurrentOpportunity, snapshot.BestOpportunity, snapshot.CurrentScore, snapshot.BestScore,
		snapshot.HarvestedYield, snapshot.Rebalanced,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Str("cycle_id", snapshot.CycleID).
		Uint64("total_assets", snapshot.TotalAssets).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

// GetRecentSnapshots returns the most recent cycle snapshots, newest first.
func GetRecentSnapshots(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT snapshot_id, cycle_id, pool_id, snapshot_timestamp,
			total_assets, total_shares, share_price, total_yield, accumulated_fees, num_users,
			current_opportunity, best_opportunity, current_score, best_score,
			harvested_yield, rebalanced
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.CycleSnapshot
	for rows.Next() {
		var s types.CycleSnapshot
		var poolID uint64
		err := rows.Scan(
			&s.SnapshotID, &s.CycleID, &poolID, &s.Timestamp,
			&s.TotalAssets, &s.TotalShares, &s.SharePrice, &s.TotalYield, &s.AccumulatedFees, &s.NumUsers,
			&s.CurrentOpportunity, &s.BestOpportunity, &s.CurrentScore, &s.BestScore,
			&s.HarvestedYield, &s.Rebalanced,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle snapshot row: %w", err)
		}
		s.Pool = types.PoolID(poolID)
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle snapshot rows: %w", err)
	}

	return snapshots, nil
}
