package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appChallenge "github.com/tradeduel/tradeduel/internal/application/challenge"
	domainChallenge "github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
	"github.com/tradeduel/tradeduel/internal/domain/window"
)

// Data types for requests

// windowRequest accepts either RFC3339 instants or calendar date and time
// strings interpreted in Timezone (default UTC).
type windowRequest struct {
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	StartDate string     `json:"startDate,omitempty"`
	StartTime string     `json:"startTime,omitempty"`
	EndDate   string     `json:"endDate,omitempty"`
	EndTime   string     `json:"endTime,omitempty"`
	Timezone  string     `json:"timezone,omitempty"`
}

type createChallengeRequest struct {
	Title            string           `json:"title" validate:"max=120"`
	Description      string           `json:"description" validate:"max=2000"`
	Type             string           `json:"type" validate:"required,oneof=MANUAL_TRADING BOT_DUEL"`
	ChallengedID     uuid.UUID        `json:"challengedId" validate:"required"`
	ChallengerBotID  *uuid.UUID       `json:"challengerBotId,omitempty"`
	BetAmount        int64            `json:"betAmount" validate:"required,gt=0"`
	InitialBalance   *decimal.Decimal `json:"initialBalance,omitempty"`
	Window           *windowRequest   `json:"window,omitempty" validate:"required_if=Type BOT_DUEL"`
	// at most one year
	DurationMinutes  int64            `json:"durationMinutes,omitempty" validate:"required_if=Type MANUAL_TRADING,gte=0,max=525600"`
	ResponseDeadline *time.Time       `json:"responseDeadline,omitempty"`
}

type respondChallengeRequest struct {
	Accept *bool      `json:"accept" validate:"required"`
	BotID  *uuid.UUID `json:"botId,omitempty"`
}

type recordTradeRequest struct {
	TradeID   *uuid.UUID       `json:"tradeId,omitempty"`
	Symbol    string           `json:"symbol" validate:"required,max=32"`
	Side      string           `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Source    string           `json:"source,omitempty" validate:"omitempty,oneof=MANUAL BOT"`
	Profit    *decimal.Decimal `json:"profit,omitempty"`
}

type finalizeChallengeRequest struct {
	ConfirmForfeit bool `json:"confirmForfeit"`
}

// challengeResponse adds the derived display status to a challenge.
type challengeResponse struct {
	*domainChallenge.Challenge
	DisplayStatus domainChallenge.Display `json:"displayStatus"`
}

func (s *Server) view(c *domainChallenge.Challenge) challengeResponse {
	return challengeResponse{Challenge: c, DisplayStatus: domainChallenge.DisplayStatus(c, s.clock.Now())}
}

func (s *Server) views(list []*domainChallenge.Challenge) []challengeResponse {
	out := make([]challengeResponse, 0, len(list))
	for _, c := range list {
		out = append(out, s.view(c))
	}
	return out
}

func (req *windowRequest) toWindow() (window.Window, error) {
	if req.Start != nil || req.End != nil {
		if req.Start == nil || req.End == nil {
			return window.Window{}, fmt.Errorf("%w: start and end are both required", domainChallenge.ErrInvalidWindow)
		}
		return window.New(*req.Start, *req.End), nil
	}
	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return window.Window{}, fmt.Errorf("%w: unknown timezone %q", domainChallenge.ErrInvalidWindow, req.Timezone)
		}
		loc = l
	}
	w, err := window.Parse(req.StartDate, req.StartTime, req.EndDate, req.EndTime, loc)
	if err != nil {
		return window.Window{}, fmt.Errorf("%w: %w", domainChallenge.ErrInvalidWindow, err)
	}
	return w, nil
}

// Challenge handlers
func (s *Server) createChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if !s.bind(w, r, &req) {
		return
	}
	in := appChallenge.CreateInput{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		Type:             domainChallenge.Type(req.Type),
		ChallengerID:     actor(r),
		ChallengedID:     req.ChallengedID,
		ChallengerBotID:  req.ChallengerBotID,
		BetAmount:        req.BetAmount,
		Duration:         time.Duration(req.DurationMinutes) * time.Minute,
		ResponseDeadline: req.ResponseDeadline,
	}
	if req.InitialBalance != nil {
		in.InitialBalance = *req.InitialBalance
	}
	if req.Window != nil {
		win, err := req.Window.toWindow()
		if err != nil {
			s.respondDomainError(w, r, err)
			return
		}
		in.Window = win
	}
	c, err := s.challengeSvc.Create(r.Context(), in)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, s.view(c))
}

func (s *Server) getChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	c, err := s.challengeSvc.Get(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(c))
}

func (s *Server) listActiveChallenges(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	list, err := s.challengeSvc.ListActive(r.Context(), limit, offset)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.views(list))
}

func (s *Server) listUserChallenges(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid userId")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	filter := domainChallenge.Filter{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("status"); v != "" {
		st := domainChallenge.Status(strings.ToUpper(v))
		filter.Status = &st
	}
	if v := r.URL.Query().Get("type"); v != "" {
		tp := domainChallenge.Type(strings.ToUpper(v))
		filter.Type = &tp
	}
	list, err := s.challengeSvc.ListForUser(r.Context(), userID, filter)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.views(list))
}

func (s *Server) respondChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	var req respondChallengeRequest
	if !s.bind(w, r, &req) {
		return
	}
	c, err := s.challengeSvc.Respond(r.Context(), id, actor(r), *req.Accept, appChallenge.RespondOptions{BotID: req.BotID})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(c))
}

func (s *Server) recordTrade(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	var req recordTradeRequest
	if !s.bind(w, r, &req) {
		return
	}
	in := appChallenge.TradeInput{
		TradeID:  req.TradeID,
		Symbol:   req.Symbol,
		Side:     trade.Side(req.Side),
		Quantity: req.Quantity,
		Price:    req.Price,
		Source:   trade.Source(req.Source),
		Profit:   req.Profit,
	}
	if req.Timestamp != nil {
		in.Timestamp = *req.Timestamp
	}
	res, err := s.challengeSvc.RecordTrade(r.Context(), id, actor(r), in)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	trades, err := s.challengeSvc.Trades(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if trades == nil {
		trades = []*trade.Trade{}
	}
	respondJSON(w, http.StatusOK, trades)
}

func (s *Server) getStandings(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	st, err := s.challengeSvc.Standings(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) finalizeChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	var req finalizeChallengeRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	c, err := s.challengeSvc.Finalize(r.Context(), id, actor(r), appChallenge.FinalizeOptions{ConfirmForfeit: req.ConfirmForfeit})
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(c))
}

func (s *Server) cancelChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	c, err := s.challengeSvc.Cancel(r.Context(), id, actor(r))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view(c))
}
