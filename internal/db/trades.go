package db

import (
	"context"
	"database/sql"

	"fantasy-exchange/internal/model"
)

func InsertTrade(tx *sql.Tx, t *model.Trade) error {
	return tx.QueryRow(
		`INSERT INTO trades (player_id, buyer_id, seller_id, buy_order_id, sell_order_id, quantity, price, seq)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, executed_at`,
		t.PlayerID, t.BuyerID, t.SellerID, t.BuyOrderID, t.SellOrderID, t.Quantity, t.Price, t.Seq,
	).Scan(&t.ID, &t.ExecutedAt)
}

func (s *Store) ListTrades(ctx context.Context, playerID string, limit int) ([]model.Trade, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, player_id, buyer_id, seller_id, buy_order_id, sell_order_id, quantity, price, seq, executed_at
		 FROM trades WHERE player_id=$1 ORDER BY executed_at DESC LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.BuyerID, &t.SellerID, &t.BuyOrderID, &t.SellOrderID, &t.Quantity, &t.Price, &t.Seq, &t.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) RecentVolume(ctx context.Context, playerID string, since interface{}) (int64, error) {
	var vol int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity),0) FROM trades WHERE player_id=$1 AND executed_at >= $2`,
		playerID, since,
	).Scan(&vol)
	return vol, err
}
