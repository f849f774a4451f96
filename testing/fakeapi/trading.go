package fakeapi

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tradesense/tradesense-go/api"
)

const defaultPerPage = 20

func (s *Server) seedChallenges() {
	s.challenges = []*api.Challenge{
		{ID: "ch-starter", Name: "Starter", AccountSize: 10000, ProfitTarget: 8, MaxDrawdown: 10, DurationDays: 30, Price: 99, Status: "open"},
		{ID: "ch-pro", Name: "Pro", AccountSize: 50000, ProfitTarget: 10, MaxDrawdown: 8, DurationDays: 60, Price: 299, Status: "open"},
		{ID: "ch-elite", Name: "Elite", AccountSize: 200000, ProfitTarget: 10, MaxDrawdown: 5, DurationDays: 90, Price: 999, Status: "open"},
	}
}

// paginate slices items by the page and per_page query parameters
func paginate[T any](c echo.Context, items []T) api.Page[T] {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	if perPage < 1 {
		perPage = defaultPerPage
	}
	total := len(items)
	pages := (total + perPage - 1) / perPage
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	return api.Page[T]{
		Success: true,
		Data:    append([]T{}, items[start:end]...),
		Pagination: api.Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   pages,
			HasNext: page < pages,
			HasPrev: page > 1,
		},
	}
}

func notFound(resource string) error {
	return echo.NewHTTPError(http.StatusNotFound, resource+" not found")
}

func (s *Server) listAccounts(c echo.Context) error {
	userID := currentUserID(c)
	s.mu.Lock()
	var out []api.TradingAccount
	for id, acct := range s.accounts {
		if s.owners[id] == userID {
			out = append(out, *acct)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return c.JSON(http.StatusOK, paginate(c, out))
}

// ownedAccount returns the caller's account; callers hold mu
func (s *Server) ownedAccount(c echo.Context, id string) (*api.TradingAccount, bool) {
	acct, ok := s.accounts[id]
	if !ok || s.owners[id] != currentUserID(c) {
		return nil, false
	}
	return acct, true
}

func (s *Server) getAccount(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.ownedAccount(c, c.Param("id"))
	if !ok {
		return notFound("Trading account")
	}
	return c.JSON(http.StatusOK, success("", acct))
}

func (s *Server) createAccount(c echo.Context) error {
	var in api.TradingAccountInput
	if err := bind(c, &in); err != nil {
		return err
	}
	now := time.Now().UTC()
	acct := &api.TradingAccount{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Type:      in.Type,
		Currency:  in.Currency,
		Balance:   10000,
		Equity:    10000,
		Status:    "active",
		CreatedAt: &now,
	}
	s.mu.Lock()
	s.accounts[acct.ID] = acct
	s.owners[acct.ID] = currentUserID(c)
	s.mu.Unlock()
	return c.JSON(http.StatusCreated, success("Trading account created", acct))
}

func (s *Server) updateAccount(c echo.Context) error {
	var in api.TradingAccountInput
	if err := bind(c, &in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.ownedAccount(c, c.Param("id"))
	if !ok {
		return notFound("Trading account")
	}
	acct.Name, acct.Type, acct.Currency = in.Name, in.Type, in.Currency
	return c.JSON(http.StatusOK, success("Trading account updated", acct))
}

func (s *Server) deleteTradingAccount(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if _, ok := s.ownedAccount(c, id); !ok {
		return notFound("Trading account")
	}
	delete(s.accounts, id)
	delete(s.owners, id)
	return c.JSON(http.StatusOK, success("Trading account deleted", nil))
}

func (s *Server) listTrades(c echo.Context) error {
	accountID := c.QueryParam("account_id")
	status := c.QueryParam("status")
	s.mu.Lock()
	var out []api.Trade
	for _, t := range s.trades {
		if _, owned := s.ownedAccount(c, t.AccountID); !owned {
			continue
		}
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, *t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(*out[j].OpenedAt) })
	return c.JSON(http.StatusOK, paginate(c, out))
}

// ownedTrade returns a trade on one of the caller's accounts; callers hold mu
func (s *Server) ownedTrade(c echo.Context, id string) (*api.Trade, bool) {
	t, ok := s.trades[id]
	if !ok {
		return nil, false
	}
	if _, owned := s.ownedAccount(c, t.AccountID); !owned {
		return nil, false
	}
	return t, true
}

func (s *Server) getTrade(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTrade(c, c.Param("id"))
	if !ok {
		return notFound("Trade")
	}
	return c.JSON(http.StatusOK, success("", t))
}

func (s *Server) createTrade(c echo.Context) error {
	var in api.TradeInput
	if err := bind(c, &in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedAccount(c, in.AccountID); !ok {
		return notFound("Trading account")
	}
	now := time.Now().UTC()
	t := &api.Trade{
		ID:         uuid.NewString(),
		AccountID:  in.AccountID,
		Symbol:     in.Symbol,
		Side:       in.Side,
		Quantity:   in.Quantity,
		EntryPrice: 100,
		StopLoss:   in.StopLoss,
		TakeProfit: in.TakeProfit,
		Status:     "open",
		OpenedAt:   &now,
	}
	s.trades[t.ID] = t
	return c.JSON(http.StatusCreated, success("Trade opened", t))
}

func (s *Server) updateTrade(c echo.Context) error {
	var in api.TradeUpdate
	if err := c.Bind(&in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTrade(c, c.Param("id"))
	if !ok {
		return notFound("Trade")
	}
	if t.Status != "open" {
		return c.JSON(http.StatusConflict, failure("ConflictError", "Trade is already closed"))
	}
	if in.StopLoss != nil {
		t.StopLoss = in.StopLoss
	}
	if in.TakeProfit != nil {
		t.TakeProfit = in.TakeProfit
	}
	return c.JSON(http.StatusOK, success("Trade updated", t))
}

func (s *Server) closeTrade(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTrade(c, c.Param("id"))
	if !ok {
		return notFound("Trade")
	}
	if t.Status != "open" {
		return c.JSON(http.StatusConflict, failure("ConflictError", "Trade is already closed"))
	}
	exit := t.EntryPrice + 1
	if t.Side == "sell" {
		exit = t.EntryPrice - 1
	}
	now := time.Now().UTC()
	t.ExitPrice = &exit
	t.ClosedAt = &now
	t.Status = "closed"
	t.PnL = t.Quantity
	return c.JSON(http.StatusOK, success("Trade closed", t))
}

func (s *Server) listChallenges(c echo.Context) error {
	s.mu.Lock()
	out := make([]api.Challenge, 0, len(s.challenges))
	for _, ch := range s.challenges {
		out = append(out, *ch)
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, paginate(c, out))
}

// challenge finds a challenge by id; callers hold mu
func (s *Server) challenge(id string) *api.Challenge {
	for _, ch := range s.challenges {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

func (s *Server) getChallenge(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.challenge(c.Param("id"))
	if ch == nil {
		return notFound("Challenge")
	}
	return c.JSON(http.StatusOK, success("", ch))
}

func (s *Server) enroll(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.challenge(c.Param("id"))
	if ch == nil {
		return notFound("Challenge")
	}
	enrolled := *ch
	enrolled.EnrolledUserID = currentUserID(c)
	enrolled.Status = "enrolled"
	return c.JSON(http.StatusOK, success("Enrolled successfully", enrolled))
}

// ranking orders users by realized profit on closed trades
func (s *Server) ranking(challengeID string) []api.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	type stats struct {
		pnl    float64
		trades int
	}
	byUser := make(map[string]*stats)
	for _, u := range s.users {
		byUser[u.ID] = &stats{}
	}
	for _, t := range s.trades {
		owner := s.owners[t.AccountID]
		st, ok := byUser[owner]
		if !ok || t.Status != "closed" {
			continue
		}
		st.pnl += t.PnL
		st.trades++
	}

	entries := make([]api.LeaderboardEntry, 0, len(byUser))
	for _, u := range s.users {
		st := byUser[u.ID]
		entries = append(entries, api.LeaderboardEntry{
			UserID:      u.ID,
			Username:    u.Username,
			ChallengeID: challengeID,
			ProfitPct:   st.pnl / 100,
			Trades:      st.trades,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ProfitPct != entries[j].ProfitPct {
			return entries[i].ProfitPct > entries[j].ProfitPct
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (s *Server) globalLeaderboard(c echo.Context) error {
	return c.JSON(http.StatusOK, paginate(c, s.ranking("")))
}

func (s *Server) challengeLeaderboard(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	ch := s.challenge(id)
	s.mu.Unlock()
	if ch == nil {
		return notFound("Challenge")
	}
	return c.JSON(http.StatusOK, paginate(c, s.ranking(id)))
}
