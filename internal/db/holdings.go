package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"fantasy-exchange/internal/model"
)

// GetOrCreateHoldingForUpdate row-locks a user's holding in a player,
// lazily creating a zero-quantity row on first sight. A holding exists
// the moment a user's accrual or a trade first touches that player.
func GetOrCreateHoldingForUpdate(tx *sql.Tx, userID, playerID string) (*model.Holding, error) {
	h := &model.Holding{}
	err := tx.QueryRow(
		`INSERT INTO holdings (user_id, player_id) VALUES ($1,$2)
		 ON CONFLICT (user_id, player_id) DO NOTHING`,
		userID, playerID,
	).Err()
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	err = tx.QueryRow(
		`SELECT user_id, player_id, quantity, avg_cost_basis, total_cost_basis
		 FROM holdings WHERE user_id=$1 AND player_id=$2 FOR UPDATE`,
		userID, playerID,
	).Scan(&h.UserID, &h.PlayerID, &h.Quantity, &h.AvgCostBasis, &h.TotalCostBasis)
	return h, err
}

func UpdateHolding(tx *sql.Tx, h *model.Holding) error {
	_, err := tx.Exec(
		`UPDATE holdings SET quantity=$1, avg_cost_basis=$2, total_cost_basis=$3
		 WHERE user_id=$4 AND player_id=$5`,
		h.Quantity, h.AvgCostBasis, h.TotalCostBasis, h.UserID, h.PlayerID,
	)
	return err
}

func (s *Store) GetHolding(ctx context.Context, userID, playerID string) (*model.Holding, error) {
	h := &model.Holding{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT user_id, player_id, quantity, avg_cost_basis, total_cost_basis
		 FROM holdings WHERE user_id=$1 AND player_id=$2`,
		userID, playerID,
	).Scan(&h.UserID, &h.PlayerID, &h.Quantity, &h.AvgCostBasis, &h.TotalCostBasis)
	if err == sql.ErrNoRows {
		return &model.Holding{UserID: userID, PlayerID: playerID, AvgCostBasis: decimal.Zero, TotalCostBasis: decimal.Zero}, nil
	}
	return h, err
}

// GetBatchHoldings returns every holding for userID across playerIDs in
// one query, so a portfolio page with K positions costs O(1) not O(K).
func (s *Store) GetBatchHoldings(ctx context.Context, userID string, playerIDs []string) (map[string]model.Holding, error) {
	if len(playerIDs) == 0 {
		return map[string]model.Holding{}, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT user_id, player_id, quantity, avg_cost_basis, total_cost_basis
		 FROM holdings WHERE user_id=$1 AND player_id = ANY($2)`,
		userID, pqStringArray(playerIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]model.Holding, len(playerIDs))
	for rows.Next() {
		var h model.Holding
		if err := rows.Scan(&h.UserID, &h.PlayerID, &h.Quantity, &h.AvgCostBasis, &h.TotalCostBasis); err != nil {
			return nil, err
		}
		out[h.PlayerID] = h
	}
	return out, rows.Err()
}

// UserHolding pairs a non-zero holding with its player row for the
// portfolio view, avoiding a second lookup per row.
type UserHolding struct {
	model.Holding
	Player model.Player
}

func (s *Store) GetUserHoldingsWithPlayers(ctx context.Context, userID string) ([]UserHolding, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT h.user_id, h.player_id, h.quantity, h.avg_cost_basis, h.total_cost_basis,
			p.id, p.external_id, p.name, p.team, p.position, p.is_active, p.is_eligible_for_accrual,
			p.last_trade_price, p.volume_24h, p.price_change_24h, p.created_at, p.updated_at
		 FROM holdings h JOIN players p ON p.id = h.player_id
		 WHERE h.user_id=$1 AND h.quantity > 0
		 ORDER BY h.total_cost_basis DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserHolding
	for rows.Next() {
		var uh UserHolding
		if err := rows.Scan(
			&uh.Holding.UserID, &uh.Holding.PlayerID, &uh.Holding.Quantity, &uh.Holding.AvgCostBasis, &uh.Holding.TotalCostBasis,
			&uh.Player.ID, &uh.Player.ExternalID, &uh.Player.Name, &uh.Player.Team, &uh.Player.Position, &uh.Player.IsActive, &uh.Player.IsEligibleForAccrual,
			&uh.Player.LastTradePrice, &uh.Player.Volume24h, &uh.Player.PriceChange24h, &uh.Player.CreatedAt, &uh.Player.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, uh)
	}
	return out, rows.Err()
}
