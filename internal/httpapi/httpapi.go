// Package httpapi is the HTTP surface: historical query, health,
// metrics, and the policy middleware chain (origin filter, ban list,
// per-IP rate limiting) wrapping the WebSocket upgrade handler. Route
// registration and the mux/server shape are grounded on the teacher's
// cmd/feedsim/main.go and internal/api/api.go.
package httpapi

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/horviskoadrianko/aggr-server/internal/banlist"
	"github.com/horviskoadrianko/aggr-server/internal/query"
)

// Config is the slice of config.Config this layer needs.
type Config struct {
	EnableRateLimit     bool
	RateLimitTimeWindow time.Duration
	RateLimitMax        int
	Origin              string
	MetricsEnabled      bool
	APIEnabled          bool
}

// Server is the HTTP surface: it owns the mux and the rate limiter
// table, and delegates WebSocket upgrades to a broadcast.Handler built
// by the caller.
type Server struct {
	cfg     Config
	query   *query.Handler
	bans    *banlist.List
	log     zerolog.Logger
	origin  *regexp.Regexp
	started time.Time

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds the HTTP surface. The feed endpoint's WebSocket handler is
// passed later, to Mux.
func New(cfg Config, q *query.Handler, bans *banlist.List, log zerolog.Logger) *Server {
	var originRe *regexp.Regexp
	if cfg.Origin != "" {
		if re, err := regexp.Compile(cfg.Origin); err == nil {
			originRe = re
		}
	}
	return &Server{
		cfg:      cfg,
		query:    q,
		bans:     bans,
		log:      log.With().Str("component", "httpapi").Logger(),
		origin:   originRe,
		started:  time.Now(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Mux builds the full route table, wiring wsHandler under the policy
// middleware chain the way the teacher wires its /feed route.
func (s *Server) Mux(wsHandler http.HandlerFunc, clientCount func() int) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/feed", s.withPolicy(wsHandler))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"clients": clientCount(),
			"uptime":  time.Since(s.started).String(),
		})
	})
	if s.cfg.APIEnabled {
		mux.HandleFunc("GET /api/history", s.handleHistory)
	}

	if s.cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// withPolicy wraps next with origin filtering, ban list rejection, and
// per-IP rate limiting, in that order. Rejected connections get a generic
// failure after a randomized delay so a banned or rate-limited client
// can't distinguish the reason.
func (s *Server) withPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if s.origin != nil {
			if o := r.Header.Get("Origin"); o != "" && !s.origin.MatchString(o) {
				s.reject(w, ip, "origin rejected")
				return
			}
		}

		if s.bans != nil && s.bans.Banned(ip) {
			s.reject(w, ip, "banned ip")
			return
		}

		if s.cfg.EnableRateLimit && !s.allow(ip) {
			s.reject(w, ip, "rate limited")
			return
		}

		next(w, r)
	}
}

// reject sleeps a randomized 5-10s before returning a generic 500, so the
// rejection reason isn't observable by timing.
func (s *Server) reject(w http.ResponseWriter, ip, reason string) {
	s.log.Warn().Str("ip", ip).Str("reason", reason).Msg("rejecting connection")
	delay := 5*time.Second + time.Duration(rand.Int64N(int64(5*time.Second)))
	time.Sleep(delay)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) allow(ip string) bool {
	s.limMu.Lock()
	lim, ok := s.limiters[ip]
	if !ok {
		every := s.cfg.RateLimitTimeWindow / time.Duration(max(s.cfg.RateLimitMax, 1))
		lim = rate.NewLimiter(rate.Every(every), s.cfg.RateLimitMax)
		s.limiters[ip] = lim
	}
	s.limMu.Unlock()
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

// handleHistory serves the historical query endpoint, mapping
// internal/query's sentinel errors to HTTP status codes. `from` and `to`
// must be present and numeric; either missing or non-numeric is rejected
// as ErrMissingInterval before ever reaching query.Handle.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	from, ok := requireInt64Param(r, "from")
	if !ok {
		writeQueryError(w, query.ErrMissingInterval)
		return
	}
	to, ok := requireInt64Param(r, "to")
	if !ok {
		writeQueryError(w, query.ErrMissingInterval)
		return
	}

	if s.query == nil {
		writeQueryError(w, query.ErrDisabled)
		return
	}

	req := query.Request{
		From:      from,
		To:        to,
		Timeframe: parseInt64Param(r, "timeframe", 0),
	}
	if markets := r.URL.Query().Get("markets"); markets != "" {
		req.Markets = strings.Split(markets, ",")
	}

	resp, err := s.query.Handle(r.Context(), req)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrMissingInterval):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, query.ErrTooManyBars):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, query.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, query.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseInt64Param(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// requireInt64Param parses a required query parameter, returning ok=false
// if it is missing or not a valid integer.
func requireInt64Param(r *http.Request, key string) (int64, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
