package db

import (
	"context"
	"database/sql"

	"fantasy-exchange/internal/model"
)

func InsertOrder(tx *sql.Tx, o *model.Order) error {
	return tx.QueryRow(
		`INSERT INTO orders (user_id, player_id, side, order_type, quantity, filled_quantity,
			limit_price, locked_amount, locked_shares, status, seq)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		o.UserID, o.PlayerID, o.Side, o.OrderType, o.Quantity, o.FilledQuantity,
		o.LimitPrice, o.LockedAmount, o.LockedShares, o.Status, o.Seq,
	).Scan(&o.ID)
}

func UpdateOrderFill(tx *sql.Tx, orderID string, filledQty int, lockedAmount interface{}, lockedShares int, status model.OrderStatus) error {
	_, err := tx.Exec(
		`UPDATE orders SET filled_quantity=$1, locked_amount=$2, locked_shares=$3, status=$4, updated_at=now()
		 WHERE id=$5`,
		filledQty, lockedAmount, lockedShares, status, orderID,
	)
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o := &model.Order{}
	err := s.DB.QueryRowContext(ctx, orderSelect+` WHERE id=$1`, id).Scan(orderDest(o)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// GetOrderForUpdate locks the order row so a concurrent cancel and fill
// can't race on the same resting order.
func GetOrderForUpdate(tx *sql.Tx, id string) (*model.Order, error) {
	o := &model.Order{}
	err := tx.QueryRow(orderSelect+` WHERE id=$1 FOR UPDATE`, id).Scan(orderDest(o)...)
	return o, err
}

func (s *Store) GetOpenOrders(ctx context.Context, playerID string) ([]model.Order, error) {
	rows, err := s.DB.QueryContext(ctx,
		orderSelect+` WHERE player_id=$1 AND status IN ('OPEN','PARTIAL') ORDER BY seq`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// GetBatchOpenOrders loads resting orders for every player in the slice
// in one round trip, for cold-start book reconstruction across the
// whole active roster rather than one query per player.
func (s *Store) GetBatchOpenOrders(ctx context.Context, playerIDs []string) (map[string][]model.Order, error) {
	if len(playerIDs) == 0 {
		return map[string][]model.Order{}, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		orderSelect+` WHERE player_id = ANY($1) AND status IN ('OPEN','PARTIAL') ORDER BY player_id, seq`,
		pqStringArray(playerIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]model.Order, len(playerIDs))
	ords, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	for _, o := range ords {
		out[o.PlayerID] = append(out[o.PlayerID], o)
	}
	return out, nil
}

func (s *Store) GetUserOrders(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	rows, err := s.DB.QueryContext(ctx,
		orderSelect+` WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *Store) MaxSeq(ctx context.Context, playerID string) (int64, error) {
	var seq int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq),0) FROM (
			SELECT seq FROM orders WHERE player_id=$1
			UNION ALL SELECT seq FROM trades WHERE player_id=$1
		 ) t`, playerID,
	).Scan(&seq)
	return seq, err
}

const orderSelect = `SELECT id, user_id, player_id, side, order_type, quantity, filled_quantity,
	limit_price, locked_amount, locked_shares, status, seq, created_at, updated_at FROM orders`

func orderDest(o *model.Order) []any {
	return []any{&o.ID, &o.UserID, &o.PlayerID, &o.Side, &o.OrderType, &o.Quantity, &o.FilledQuantity,
		&o.LimitPrice, &o.LockedAmount, &o.LockedShares, &o.Status, &o.Seq, &o.CreatedAt, &o.UpdatedAt}
}

func scanOrders(rows *sql.Rows) ([]model.Order, error) {
	var out []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(orderDest(&o)...); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
