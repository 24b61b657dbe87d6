package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/avvvet/casino-services/internal/casino/crash"
	"github.com/avvvet/casino-services/internal/casino/engine"
	"github.com/avvvet/casino-services/internal/casino/keno"
	"github.com/avvvet/casino-services/internal/casino/ledger"
	"github.com/avvvet/casino-services/internal/casino/models"
	"github.com/avvvet/casino-services/internal/casino/slots"
	"github.com/go-chi/jwtauth"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Casino interface {
	Register(ctx context.Context, username, password string, initial decimal.Decimal) (models.Player, error)
	Login(ctx context.Context, username, password string) (models.Player, error)
	Deposit(username string, amount decimal.Decimal) (models.Player, error)
	PlaceBet(player string, panel int, amount decimal.Decimal) (crash.Bet, error)
	CashOut(player string, panel int) (crash.Bet, error)
	SelectNumber(player string, n int) ([]int, error)
	QuickPick(player string) ([]int, error)
	AddSlip(player string, bet decimal.Decimal) (keno.Slip, error)
	PlaceAllBets(player string) (decimal.Decimal, error)
	ClearAllSlips(player string) int
	Spin(player string, bet decimal.Decimal) (slots.SpinResult, error)
	View(username string) (engine.View, error)
	Recent(n int) []models.GameRecord
	Stats() models.CasinoStats
}

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	tokenTTL  time.Duration
	casino    Casino
	port      string
}

func NewHandler(c Casino, jwtKey string, tokenTTL time.Duration, port string) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &Handler{
		tokenAuth: jwtauth.New("HS256", []byte(jwtKey), nil),
		tokenTTL:  tokenTTL,
		casino:    c,
		port:      port,
	}
}

func (h *Handler) TokenAuth() *jwtauth.JWTAuth { return h.tokenAuth }

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) ok(w http.ResponseWriter, message string, data interface{}) {
	h.CreateResponse(w, Response{Message: message, Code: http.StatusOK, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		log.Errorf("request failed: %s", err)
	}
	h.CreateResponse(w, Response{Message: http.StatusText(code), Code: code, Error: err.Error()})
}

var errMalformed = errors.New("malformed request body")

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrUnknownPlayer):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrPlayerExists),
		errors.Is(err, crash.ErrNotBettingPeriod),
		errors.Is(err, crash.ErrPanelBusy),
		errors.Is(err, crash.ErrNoActiveGame),
		errors.Is(err, crash.ErrNoActiveBet),
		errors.Is(err, crash.ErrAlreadyCashedOut),
		errors.Is(err, keno.ErrNotCollecting),
		errors.Is(err, slots.ErrAlreadySpinning):
		return http.StatusConflict
	case errors.Is(err, errMalformed),
		errors.Is(err, engine.ErrInvalidUsername),
		errors.Is(err, engine.ErrInvalidPassword),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, crash.ErrUnknownPanel),
		errors.Is(err, keno.ErrNumberOutOfRange),
		errors.Is(err, keno.ErrMaxNumbersExceeded),
		errors.Is(err, keno.ErrMaxSlipsExceeded),
		errors.Is(err, keno.ErrEmptySelection),
		errors.Is(err, keno.ErrNoSlips):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errMalformed
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errMalformed
	}
	return nil
}

// player is the username carried in the verified token.
func player(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func (h *Handler) issueToken(username string) (string, error) {
	claims := map[string]interface{}{"sub": username}
	jwtauth.SetExpiry(claims, time.Now().Add(h.tokenTTL))
	_, token, err := h.tokenAuth.Encode(claims)
	return token, err
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "casino service is running at port "+h.port, nil)
}

type credentials struct {
	Username       string          `json:"username"`
	Password       string          `json:"password"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type session struct {
	Token  string        `json:"token"`
	Player models.Player `json:"player"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.casino.Register(r.Context(), req.Username, req.Password, req.InitialBalance)
	if err != nil {
		h.fail(w, err)
		return
	}
	token, err := h.issueToken(p.Username)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.CreateResponse(w, Response{Message: "registered", Code: http.StatusCreated, Data: session{Token: token, Player: p}})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.casino.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	token, err := h.issueToken(p.Username)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "logged in", session{Token: token, Player: p})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "stats", h.casino.Stats())
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	h.ok(w, "history", h.casino.Recent(n))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	v, err := h.casino.View(player(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "state", v)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type panelRequest struct {
	Panel  int             `json:"panel"`
	Amount decimal.Decimal `json:"amount"`
}

type numberRequest struct {
	Number int `json:"number"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.casino.Deposit(player(r), req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "deposited", p)
}

func (h *Handler) CrashBet(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	bet, err := h.casino.PlaceBet(player(r), req.Panel, req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "bet placed", bet)
}

func (h *Handler) CrashCashOut(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	bet, err := h.casino.CashOut(player(r), req.Panel)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "cashed out", bet)
}

func (h *Handler) KenoSelect(w http.ResponseWriter, r *http.Request) {
	var req numberRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	sel, err := h.casino.SelectNumber(player(r), req.Number)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "selection", sel)
}

func (h *Handler) KenoQuickPick(w http.ResponseWriter, r *http.Request) {
	sel, err := h.casino.QuickPick(player(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "selection", sel)
}

func (h *Handler) KenoAddSlip(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	slip, err := h.casino.AddSlip(player(r), req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "slip added", slip)
}

func (h *Handler) KenoPlace(w http.ResponseWriter, r *http.Request) {
	total, err := h.casino.PlaceAllBets(player(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "slips placed", amountRequest{Amount: total})
}

func (h *Handler) KenoClear(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "slips cleared", map[string]int{"removed": h.casino.ClearAllSlips(player(r))})
}

func (h *Handler) SlotsSpin(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.casino.Spin(player(r), req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.ok(w, "spun", res)
}
