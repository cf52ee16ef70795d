package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
	"fantasy-exchange/internal/model"
)

// UpsertPlayer syncs a roster row from the sports-data feed, keyed by
// the provider's external_id so repeated ingestion runs converge on the
// same internal row instead of duplicating players. is_eligible_for_accrual
// is admin-controlled and only seeded on first insert, never overwritten
// by a later roster sync.
func (s *Store) UpsertPlayer(ctx context.Context, p *model.Player) error {
	return s.DB.QueryRowContext(ctx,
		`INSERT INTO players (external_id, name, team, position, is_active, is_eligible_for_accrual)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (external_id) DO UPDATE SET
			name=EXCLUDED.name, team=EXCLUDED.team, position=EXCLUDED.position,
			is_active=EXCLUDED.is_active, updated_at=now()
		 RETURNING id`,
		p.ExternalID, p.Name, p.Team, p.Position, p.IsActive, p.IsEligibleForAccrual,
	).Scan(&p.ID)
}

func (s *Store) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	p := &model.Player{}
	err := s.DB.QueryRowContext(ctx, playerSelect+` WHERE id=$1`, id).Scan(playerDest(p)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// PlayerIDsByExternalIDs maps provider external IDs to internal player
// UUIDs, for translating stat-line foreign keys during ingestion.
func (s *Store) PlayerIDsByExternalIDs(ctx context.Context, externalIDs []string) (map[string]string, error) {
	if len(externalIDs) == 0 {
		return map[string]string{}, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT external_id, id FROM players WHERE external_id = ANY($1)`, pqStringArray(externalIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string, len(externalIDs))
	for rows.Next() {
		var extID, id string
		if err := rows.Scan(&extID, &id); err != nil {
			return nil, err
		}
		out[extID] = id
	}
	return out, rows.Err()
}

// GetPlayersByIDs batches a roster lookup into one query so a page
// rendering K players issues O(1) round trips rather than O(K).
func (s *Store) GetPlayersByIDs(ctx context.Context, ids []string) (map[string]model.Player, error) {
	if len(ids) == 0 {
		return map[string]model.Player{}, nil
	}
	rows, err := s.DB.QueryContext(ctx, playerSelect+` WHERE id = ANY($1)`, pqStringArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]model.Player, len(ids))
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(playerDest(&p)...); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

type PlayerFilter struct {
	Search   string
	Team     string
	Position string
	Limit    int
	Offset   int
}

func (s *Store) ListPlayers(ctx context.Context, f PlayerFilter) ([]model.Player, error) {
	q := strings.Builder{}
	q.WriteString(playerSelect + ` WHERE is_active`)
	var args []any
	idx := 1
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		q.WriteString(" AND lower(name) LIKE $" + itoa(idx))
		idx++
	}
	if f.Team != "" {
		args = append(args, f.Team)
		q.WriteString(" AND team = $" + itoa(idx))
		idx++
	}
	if f.Position != "" {
		args = append(args, f.Position)
		q.WriteString(" AND position = $" + itoa(idx))
		idx++
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q.WriteString(" ORDER BY name LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1))

	rows, err := s.DB.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(playerDest(&p)...); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePlayerLastTrade refreshes the denormalized ticker fields after a
// fill: last trade price, rolling 24h volume, and the 24h price delta
// against the price that was last current.
func UpdatePlayerLastTrade(tx *sql.Tx, playerID string, price decimal.Decimal, volumeDelta int64) error {
	_, err := tx.Exec(
		`UPDATE players SET
			price_change_24h = COALESCE($1 - last_trade_price, 0),
			last_trade_price = $1,
			volume_24h = volume_24h + $2,
			updated_at = now()
		 WHERE id=$3`,
		price, volumeDelta, playerID,
	)
	return err
}

const playerSelect = `SELECT id, name, team, position, is_active, is_eligible_for_accrual,
	last_trade_price, volume_24h, price_change_24h, created_at, updated_at FROM players`

func playerDest(p *model.Player) []any {
	return []any{&p.ID, &p.Name, &p.Team, &p.Position, &p.IsActive, &p.IsEligibleForAccrual,
		&p.LastTradePrice, &p.Volume24h, &p.PriceChange24h, &p.CreatedAt, &p.UpdatedAt}
}
