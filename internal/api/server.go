package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/accrual"
	"fantasy-exchange/internal/contest"
	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/engine"
	"fantasy-exchange/internal/model"
	"fantasy-exchange/internal/scheduler"
	"fantasy-exchange/internal/ws"
)

// Server is the thin HTTP layer over the core engines: it validates
// and decodes requests, delegates every state change to engine/
// accrual/contest, and leaves money and share math entirely to them.
type Server struct {
	store     *db.Store
	manager   *engine.Manager
	accrual   *accrual.Engine
	contest   *contest.Engine
	scheduler *scheduler.Scheduler
	hub       *ws.Hub
	secret    []byte
	adminToken string
}

func NewServer(store *db.Store, mgr *engine.Manager, acc *accrual.Engine, con *contest.Engine, sched *scheduler.Scheduler, hub *ws.Hub, sessionSecret, adminToken string) *Server {
	return &Server{
		store: store, manager: mgr, accrual: acc, contest: con, scheduler: sched, hub: hub,
		secret: []byte(sessionSecret), adminToken: adminToken,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json200(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", s.hub.HandleWS)

	r.Get("/api/dashboard", s.withOptionalUser(s.dashboard))
	r.Get("/api/players", s.listPlayers)
	r.Get("/api/player/{id}", s.withOptionalUser(s.getPlayer))
	r.Get("/api/contest/{id}/leaderboard", s.contestLeaderboard)
	r.Get("/api/leaderboards", s.leaderboards)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/api/orders/{playerId}", s.placeOrder)
		r.Post("/api/orders/{orderId}/cancel", s.cancelOrder)

		r.Post("/api/vesting/start", s.vestingStart)
		r.Post("/api/vesting/claim", s.vestingClaim)

		r.Post("/api/contest/{id}/enter", s.enterContest)
		r.Put("/api/contest/{contestId}/entry/{entryId}", s.editContestEntry)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/api/admin/jobs/{name}/trigger", s.adminTriggerJob)
			r.Post("/api/admin/backfill", s.adminBackfill)
			r.Get("/api/admin/bots", s.adminListBots)
			r.Post("/api/admin/bots/{userId}/trigger", s.adminTriggerBot)
			r.Post("/api/admin/premium", s.adminGrantPremium)
		})
	})

	return r
}

// ── Auth ─────────────────────────────────────────────
//
// Session/OAuth verification happens upstream of this service (spec's
// external collaborator); what arrives here is a bearer token whose
// "sub" claim is a trusted username. EnsureUser provisions the local
// row on first sight. DEV_BYPASS_AUTH is loaded into config.Config but
// this layer does not read it: there is no dev-user substitute, and every
// authenticated route requires a valid bearer token.

type ctxKey string

const ctxUserKey ctxKey = "user"

func (s *Server) identifyUser(r *http.Request) (*model.User, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, fmt.Errorf("missing token")
	}
	tokenStr := strings.TrimPrefix(auth, "Bearer ")
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	username, _ := claims["sub"].(string)
	if username == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	return s.store.EnsureUser(r.Context(), username)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.identifyUser(r)
		if err != nil || user == nil {
			jsonErr(w, 401, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withOptionalUser attaches a user to the context when a valid bearer
// token is present, but never rejects the request: spec's dashboard
// and player pages serve a reduced payload to anonymous callers.
func (s *Server) withOptionalUser(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if user, err := s.identifyUser(r); err == nil && user != nil {
			r = r.WithContext(context.WithValue(r.Context(), ctxUserKey, user))
		}
		h(w, r)
	}
}

func userFromCtx(r *http.Request) *model.User {
	u, _ := r.Context().Value(ctxUserKey).(*model.User)
	return u
}

// adminOnly accepts either the static ADMIN_API_TOKEN as a bearer
// token, or a regular session whose user row carries is_admin.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if s.adminToken != "" && auth == "Bearer "+s.adminToken {
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.identifyUser(r)
		if err != nil || user == nil || !user.IsAdmin {
			jsonErr(w, 403, "admin only")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ── Dashboard ────────────────────────────────────────

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	players, err := s.store.ListPlayers(r.Context(), db.PlayerFilter{Limit: 20})
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	payload := map[string]any{"topPlayers": players}

	user := userFromCtx(r)
	if user == nil {
		json200(w, payload)
		return
	}
	available, err := s.store.AvailableBalance(r.Context(), user.ID)
	if err == nil {
		payload["user"] = user
		payload["availableBalance"] = available
	}
	json200(w, payload)
}

// ── Players ──────────────────────────────────────────

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.PlayerFilter{
		Search:   q.Get("search"),
		Team:     q.Get("team"),
		Position: q.Get("position"),
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = n
	}

	players, err := s.store.ListPlayers(r.Context(), f)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}

	if teamsDate := q.Get("teamsPlayingOnDate"); teamsDate != "" {
		players = filterByTeamsPlayingOnDate(s.store, r.Context(), players, teamsDate)
	}
	needsBook := q.Get("sortBy") == "bid" || q.Get("sortBy") == "ask" ||
		q.Get("hasBuyOrders") == "true" || q.Get("hasSellOrders") == "true"
	var books map[string]model.BookSnapshot
	if needsBook {
		ids := make([]string, len(players))
		for i, p := range players {
			ids[i] = p.ID
		}
		books = s.manager.BatchSnapshot(ids, 1)
	}

	if sortBy := q.Get("sortBy"); sortBy != "" {
		sortPlayers(players, sortBy, q.Get("sortOrder"), books)
	}
	if q.Get("hasBuyOrders") == "true" || q.Get("hasSellOrders") == "true" {
		players = filterByOpenOrders(books, players, q.Get("hasBuyOrders") == "true", q.Get("hasSellOrders") == "true")
	}

	if players == nil {
		players = []model.Player{}
	}
	json200(w, players)
}

func filterByTeamsPlayingOnDate(store *db.Store, ctx context.Context, players []model.Player, date string) []model.Player {
	games, err := store.ListGamesByDay(ctx, date)
	if err != nil {
		return players
	}
	teams := make(map[string]bool, len(games)*2)
	for _, g := range games {
		teams[g.HomeTeam] = true
		teams[g.AwayTeam] = true
	}
	out := players[:0]
	for _, p := range players {
		if teams[p.Team] {
			out = append(out, p)
		}
	}
	return out
}

func filterByOpenOrders(books map[string]model.BookSnapshot, players []model.Player, wantBuy, wantSell bool) []model.Player {
	out := players[:0]
	for _, p := range players {
		snap := books[p.ID]
		hasBuy := len(snap.Bids) > 0
		hasSell := len(snap.Asks) > 0
		if wantBuy && !hasBuy {
			continue
		}
		if wantSell && !hasSell {
			continue
		}
		out = append(out, p)
	}
	return out
}

// bookTop returns the best level's price from a snapshot's bid or ask
// side, or zero if the side is empty.
func bookTop(levels []model.BookLevel) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}
	return levels[0].Price
}

func sortPlayers(players []model.Player, sortBy, order string, books map[string]model.BookSnapshot) {
	less := func(i, j int) bool {
		switch sortBy {
		case "volume":
			return players[i].Volume24h < players[j].Volume24h
		case "change":
			return players[i].PriceChange24h.LessThan(players[j].PriceChange24h)
		case "bid":
			return bookTop(books[players[i].ID].Bids).LessThan(bookTop(books[players[j].ID].Bids))
		case "ask":
			return bookTop(books[players[i].ID].Asks).LessThan(bookTop(books[players[j].ID].Asks))
		case "price":
			fallthrough
		default:
			pi, pj := decimal.Zero, decimal.Zero
			if players[i].LastTradePrice != nil {
				pi = *players[i].LastTradePrice
			}
			if players[j].LastTradePrice != nil {
				pj = *players[j].LastTradePrice
			}
			return pi.LessThan(pj)
		}
	}
	if order == "desc" || order == "" {
		sort.SliceStable(players, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(players, less)
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	player, err := s.store.GetPlayer(r.Context(), id)
	if err != nil || player == nil {
		jsonErr(w, 404, "player not found")
		return
	}

	book := s.manager.Snapshot(id, 10)
	trades, err := s.store.ListTrades(r.Context(), id, 20)
	if err != nil {
		trades = nil
	}

	payload := map[string]any{
		"player":     player,
		"book":       book,
		"trades":     trades,
	}

	if user := userFromCtx(r); user != nil {
		holding, err := s.store.GetHolding(r.Context(), user.ID, id)
		if err == nil {
			payload["holding"] = holding
		}
		if available, err := s.store.AvailableBalance(r.Context(), user.ID); err == nil {
			payload["availableBalance"] = available
		}
	}
	json200(w, payload)
}

// ── Orders ───────────────────────────────────────────

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerId")
	user := userFromCtx(r)

	var req model.PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		jsonErr(w, 400, "side must be BUY or SELL")
		return
	}
	if req.OrderType != model.TypeLimit && req.OrderType != model.TypeMarket {
		jsonErr(w, 400, "order_type must be LIMIT or MARKET")
		return
	}
	if req.Quantity < 1 {
		jsonErr(w, 400, "quantity must be >= 1")
		return
	}

	player, err := s.store.GetPlayer(r.Context(), playerID)
	if err != nil || player == nil {
		jsonErr(w, 404, "player not found")
		return
	}

	eng, err := s.manager.EngineFor(r.Context(), playerID)
	if err != nil {
		jsonErr(w, 500, "engine unavailable")
		return
	}

	result := eng.PlaceOrder(user.ID, req)
	if result.Order.Status == model.StatusRejected {
		jsonErr(w, 400, result.Reason)
		return
	}
	json200(w, result)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	user := userFromCtx(r)

	order, err := s.store.GetOrder(r.Context(), orderID)
	if err != nil || order == nil {
		jsonErr(w, 404, "order not found")
		return
	}
	if order.UserID != user.ID {
		jsonErr(w, 403, "not your order")
		return
	}

	eng, err := s.manager.EngineFor(r.Context(), order.PlayerID)
	if err != nil {
		jsonErr(w, 500, "engine unavailable")
		return
	}
	if err := eng.CancelOrder(orderID, user.ID); err != nil {
		jsonErr(w, 400, err.Error())
		return
	}
	json200(w, map[string]string{"status": "cancelled"})
}

// ── Vesting (accrual) ───────────────────────────────

func (s *Server) vestingStart(w http.ResponseWriter, r *http.Request) {
	user := userFromCtx(r)
	var req struct {
		PlayerIDs []string `json:"playerIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if len(req.PlayerIDs) < 1 || len(req.PlayerIDs) > 10 {
		jsonErr(w, 400, "playerIds must include 1-10 players")
		return
	}
	if err := s.accrual.SetSplits(r.Context(), user.ID, req.PlayerIDs); err != nil {
		jsonErr(w, 400, err.Error())
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

func (s *Server) vestingClaim(w http.ResponseWriter, r *http.Request) {
	user := userFromCtx(r)
	if err := s.accrual.Claim(r.Context(), user.ID); err != nil {
		jsonErr(w, 400, err.Error())
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

// ── Contests ─────────────────────────────────────────

func (s *Server) enterContest(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "id")
	user := userFromCtx(r)

	var req model.EnterContestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	entry, err := s.contest.Enter(r.Context(), contestID, user.ID, req)
	if err != nil {
		jsonErr(w, 400, err.Error())
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(entry)
}

func (s *Server) editContestEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	user := userFromCtx(r)

	var req model.EnterContestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if err := s.contest.Edit(r.Context(), entryID, user.ID, req); err != nil {
		jsonErr(w, 400, err.Error())
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

func (s *Server) contestLeaderboard(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "id")
	entries, err := s.store.ListContestEntries(r.Context(), contestID)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if entries == nil {
		entries = []model.ContestEntry{}
	}
	json200(w, entries)
}

// ── Leaderboards ─────────────────────────────────────

func (s *Server) leaderboards(w http.ResponseWriter, r *http.Request) {
	category := db.LeaderboardCategory(r.URL.Query().Get("category"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.store.Leaderboard(r.Context(), category, limit)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if rows == nil {
		rows = []db.LeaderboardRow{}
	}
	json200(w, rows)
}

// ── Admin ────────────────────────────────────────────

func (s *Server) adminTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.scheduler.TriggerNow(r.Context(), name); err != nil {
		jsonErr(w, 400, err.Error())
		return
	}
	json200(w, map[string]string{"status": "triggered", "job": name})
}

func (s *Server) adminBackfill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		jsonErr(w, 400, "startDate must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		jsonErr(w, 400, "endDate must be YYYY-MM-DD")
		return
	}
	processed, errored := s.scheduler.Backfill(r.Context(), start, end)
	json200(w, map[string]int{"processed": processed, "errored": errored})
}

func (s *Server) adminListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.store.ListBotProfiles(r.Context())
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	json200(w, bots)
}

func (s *Server) adminTriggerBot(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := s.scheduler.TriggerBot(r.Context(), userID); err != nil {
		jsonErr(w, 400, err.Error())
		return
	}
	json200(w, map[string]string{"status": "triggered"})
}

func (s *Server) adminGrantPremium(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		ExpiresAt string `json:"expiresAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		jsonErr(w, 400, "expiresAt must be RFC3339")
		return
	}
	tx, err := s.store.BeginTx(r.Context())
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	defer tx.Rollback()
	if err := db.SetPremium(tx, req.UserID, expires); err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if err := tx.Commit(); err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

// ── Helpers ──────────────────────────────────────────

func json200(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("api: encode response")
	}
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
