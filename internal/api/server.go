// Package api serves the trader's state over HTTP: read-only snapshots,
// status mutations guarded by an optional TOTP code, Prometheus metrics and
// a WebSocket stream of every published cycle.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-simv1/internal/ml"
	"trading-simv1/internal/model"
	"trading-simv1/internal/state"
)

const (
	defaultTradeLimit = 100
	maxTradeLimit     = 1000
	defaultFeedLines  = 80
	retrainTimeout    = 2 * time.Minute
)

// StatusService validates and persists runtime status changes.
type StatusService interface {
	Load(ctx context.Context) (model.Status, error)
	SetMode(ctx context.Context, name string) (model.Status, error)
	SetSymbol(ctx context.Context, symbol string) (model.Status, error)
	SetTradeFraction(ctx context.Context, f float64) (model.Status, error)
}

// TradeLister returns executed trades, newest first.
type TradeLister interface {
	Trades(ctx context.Context, limit int) ([]model.TradeRecord, error)
}

// Retrainer triggers an immediate model retrain.
type Retrainer interface {
	Retrain(ctx context.Context) (*ml.Artifact, error)
}

// ActivityFeed returns the most recent activity lines, oldest first.
type ActivityFeed interface {
	Lines(n int) []string
}

// Deps are the handlers' collaborators. Trades, Retrainer, Metrics, Health,
// Hub and Activity may be nil; their routes then answer 404/503.
type Deps struct {
	State     *state.Store
	Status    StatusService
	Trades    TradeLister
	Retrainer Retrainer
	Metrics   http.Handler
	Health    http.Handler
	Hub       *Hub
	Activity  ActivityFeed
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	totp *TOTPGuard
	log  *slog.Logger
}

// NewServer builds the handler set. An empty totpSecret disables the guard.
func NewServer(deps Deps, totpSecret string) *Server {
	return &Server{
		deps: deps,
		totp: NewTOTPGuard(totpSecret),
		log:  slog.With("component", "api"),
	}
}

// Handler returns the routed mux wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/latest", s.get(s.handleLatest))
	mux.HandleFunc("/wallet", s.get(s.handleWallet))
	mux.HandleFunc("/status", s.get(s.handleStatus))
	mux.HandleFunc("/trades", s.get(s.handleTrades))
	mux.HandleFunc("/logs/feed", s.get(s.handleLogFeed))

	mux.HandleFunc("/mode/", s.post(s.handleMode))
	mux.HandleFunc("/symbol", s.post(s.handleSymbol))
	mux.HandleFunc("/set_trade_fraction", s.post(s.handleTradeFraction))
	mux.HandleFunc("/retrain", s.post(s.handleRetrain))

	if s.deps.Health != nil {
		mux.Handle("/healthz", s.deps.Health)
	}
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", s.deps.Metrics)
	}
	if s.deps.Hub != nil {
		mux.Handle("/stream", s.deps.Hub)
	}
	return withCORS(mux)
}

// withCORS sets CORS headers and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+otpHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !s.totp.Allow(r) {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+otpHeader)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.deps.State.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no data yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.Wallet())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Status.Load(r.Context())
	if err != nil {
		s.log.Error("status load failed", "error", err)
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLogFeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Activity == nil {
		writeError(w, http.StatusNotFound, "activity feed disabled")
		return
	}
	n := defaultFeedLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": s.deps.Activity.Lines(n)})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trades == nil {
		writeError(w, http.StatusNotFound, "trade journal disabled")
		return
	}
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTradeLimit)
	}
	trades, err := s.deps.Trades.Trades(r.Context(), limit)
	if err != nil {
		s.log.Error("trade listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "trades unavailable")
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/mode/"), "/")
	st, err := s.deps.Status.SetMode(r.Context(), name)
	s.writeStatus(w, st, err)
}

func (s *Server) handleSymbol(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.deps.Status.SetSymbol(r.Context(), req.Symbol)
	s.writeStatus(w, st, err)
}

func (s *Server) handleTradeFraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fraction      *float64 `json:"fraction"`
		TradeFraction *float64 `json:"trade_fraction"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := req.Fraction
	if f == nil {
		f = req.TradeFraction
	}
	if f == nil {
		writeError(w, http.StatusBadRequest, "fraction is required")
		return
	}
	st, err := s.deps.Status.SetTradeFraction(r.Context(), *f)
	s.writeStatus(w, st, err)
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if s.deps.Retrainer == nil {
		writeError(w, http.StatusNotFound, "model training disabled")
		return
	}
	// The retrain outlives a disconnecting client.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), retrainTimeout)
	defer cancel()

	art, err := s.deps.Retrainer.Retrain(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"kind":           art.Kind,
			"symbol":         art.Symbol,
			"trained_at":     art.TrainedAt,
			"rows":           art.Rows,
			"examples":       art.Examples,
			"train_accuracy": art.TrainAccuracy,
		})
	case errors.Is(err, ml.ErrTrainingInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInsufficientHistory):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, model.ErrInvalidConfiguration):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("manual retrain failed", "error", err)
		writeError(w, http.StatusInternalServerError, "retrain failed")
	}
}

func (s *Server) writeStatus(w http.ResponseWriter, st model.Status, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, st)
	case errors.Is(err, model.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("status update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "status update failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
