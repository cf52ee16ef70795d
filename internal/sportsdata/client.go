// Package sportsdata is the outbound HTTP client against the
// third-party sports-data provider: a season player list
// and daily/per-player gamelogs, fronted by endpoint-scoped rate
// limiters matching the provider's published minimum inter-call gaps.
package sportsdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"fantasy-exchange/internal/model"
)

const baseURL = "https://api.mysportsfeeds.com/v2.1/pull/nba"

// Client wraps a resty HTTP client with basic auth, gzip, retry on 5xx,
// and per-endpoint rate limiting.
type Client struct {
	http        *resty.Client
	gameLogsRL  *rate.Limiter // 5s minimum gap, daily gamelogs
	backfillRL  *rate.Limiter // 10s minimum gap, per-player historical backfill
}

// New builds a client authenticated with the provider API key. The
// provider's basic-auth convention is APIKey as username, the literal
// string "MYSPORTSFEEDS" as password.
func New(apiKey string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetBasicAuth(apiKey, "MYSPORTSFEEDS").
		SetHeader("Accept-Encoding", "gzip").
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{
		http:       http,
		gameLogsRL: rate.NewLimiter(rate.Every(5*time.Second), 1),
		backfillRL: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// ListPlayers fetches the full season roster.
func (c *Client) ListPlayers(ctx context.Context, season string) ([]model.Player, error) {
	var feed playersFeed
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&feed).
		Get(fmt.Sprintf("/%s/players.json", season))
	if err != nil {
		return nil, fmt.Errorf("sportsdata: list players: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("sportsdata: list players: status %d", resp.StatusCode())
	}

	players := make([]model.Player, 0, len(feed.PlayerList))
	for _, entry := range feed.PlayerList {
		p := entry.Player
		players = append(players, model.Player{
			ExternalID: p.ID,
			Name:       p.FirstName + " " + p.LastName,
			Team:       p.Team.Abbreviation,
			Position:   p.Position,
			IsActive:   p.RosterStatus == "ROSTER",
		})
	}
	return players, nil
}

// DailyGameLogs fetches every player's stat line for games played on
// date (YYYY-MM-DD, ET civil date), rate limited to the provider's
// 5-second minimum gap between daily-gamelogs calls.
func (c *Client) DailyGameLogs(ctx context.Context, date string) ([]model.Game, []model.PlayerGameStat, error) {
	if err := c.gameLogsRL.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("sportsdata: rate limit: %w", err)
	}
	return c.fetchGameLogs(ctx, fmt.Sprintf("/current/date/%s/player_gamelogs.json", date))
}

// PlayerGameLogs fetches one player's historical gamelogs for season,
// rate limited to the provider's 10-second minimum gap for per-player
// backfill calls.
func (c *Client) PlayerGameLogs(ctx context.Context, season, externalPlayerID string) ([]model.Game, []model.PlayerGameStat, error) {
	if err := c.backfillRL.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("sportsdata: rate limit: %w", err)
	}
	return c.fetchGameLogs(ctx, fmt.Sprintf("/%s/player_gamelogs.json?player=%s", season, externalPlayerID))
}

func (c *Client) fetchGameLogs(ctx context.Context, path string) ([]model.Game, []model.PlayerGameStat, error) {
	var feed gameLogsFeed
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&feed).
		Get(path)
	if err != nil {
		return nil, nil, fmt.Errorf("sportsdata: game logs: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, nil, fmt.Errorf("sportsdata: game logs: status %d", resp.StatusCode())
	}

	gamesByID := make(map[int]model.Game)
	stats := make([]model.PlayerGameStat, 0, len(feed.GameLogs))
	for _, entry := range feed.GameLogs {
		g := entry.Game
		startsAt, _ := time.Parse(time.RFC3339, g.StartTime)
		gamesByID[g.ID] = model.Game{
			ExternalID: strconv.Itoa(g.ID),
			HomeTeam:   g.HomeTeam,
			AwayTeam:   g.AwayTeam,
			StartsAt:   startsAt,
			Status:     model.NormalizeGameStatus(g.PlayedStatus),
			GameDay:    GameDayET(startsAt),
		}

		st := entry.Stats
		stats = append(stats, model.PlayerGameStat{
			PlayerID: entry.Player.ID,
			GameID:   strconv.Itoa(g.ID),
			Pts:      parseStat(st.Offense.PtsPerGame),
			ThreePM:  parseStat(st.FieldGoals.Fg3PtMadePerGame),
			Reb:      parseStat(st.Rebounds.RebPerGame),
			Ast:      parseStat(st.Offense.AstPerGame),
			Stl:      parseStat(st.Defense.StlPerGame),
			Blk:      parseStat(st.Defense.BlkPerGame),
			Tov:      parseStat(st.Offense.TovPerGame),
		})
	}

	games := make([]model.Game, 0, len(gamesByID))
	for _, g := range gamesByID {
		games = append(games, g)
	}
	return games, stats, nil
}

// parseStat truncates the provider's decimal per-game averages to
// whole counting stats; the feed reports box-score totals as strings.
func parseStat(raw string) int {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return int(d.IntPart())
}
