package api

import (
	"Go2NetGuard/internal/dispatch"
	"Go2NetGuard/internal/engine/detector"
	"Go2NetGuard/internal/engine/window"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/query"
	"Go2NetGuard/internal/report"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// StateProvider exposes the engine's read-only state.
type StateProvider interface {
	States() [model.NumCategories]detector.Entry
	Limits() detector.Limits
	WindowStart() int64
	Aggregations() uint64
	Lanes() int
}

// DispatchStats exposes the host's frame counters.
type DispatchStats interface {
	Stats() dispatch.Stats
}

// ReportStats exposes the report pipeline counters.
type ReportStats interface {
	Stats() []report.WriterStats
	Enqueued() uint64
}

// Options wires the API to the running components. Nil members disable
// the routes that need them.
type Options struct {
	Engine    StateProvider
	Clock     window.Clock
	Dispatch  DispatchStats
	Reports   ReportStats
	History   query.Querier
	Metrics   http.Handler
	JWTSecret string
}

// CategoryState is the API view of one action table entry.
type CategoryState struct {
	Category            string `json:"category"`
	Verdict             string `json:"verdict"`
	LastAttackAgoMs     int64  `json:"last_attack_ago_ms,omitempty"`
	CooldownRemainingMs int64  `json:"cooldown_remaining_ms"`
}

// LimitsView is the API view of the detection tunables.
type LimitsView struct {
	WindowSeconds   float64 `json:"window_seconds"`
	CooldownSeconds float64 `json:"cooldown_seconds"`
	PPSLimit        uint64  `json:"pps_limit"`
	BPSLimit        uint64  `json:"bps_limit"`
}

// EngineStats summarizes the engine.
type EngineStats struct {
	Lanes         int        `json:"lanes"`
	Aggregations  uint64     `json:"aggregations"`
	WindowAgeMs   int64      `json:"window_age_ms"`
	Initialised   bool       `json:"initialised"`
	Limits        LimitsView `json:"limits"`
	DroppedGroups []string   `json:"dropped_categories"`
}

// StatsResponse is the body of /api/v1/stats.
type StatsResponse struct {
	Engine   EngineStats          `json:"engine"`
	Dispatch *dispatch.Stats      `json:"dispatch,omitempty"`
	Reports  []report.WriterStats `json:"reports,omitempty"`
	Enqueued uint64               `json:"reports_enqueued"`
}

type server struct {
	opts Options
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	if opts.Clock == nil {
		opts.Clock = window.NewMonotonicClock()
	}
	s := &server{opts: opts}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	if opts.JWTSecret != "" {
		v1.Use(jwtMiddleware([]byte(opts.JWTSecret)))
	}
	v1.HandleFunc("/verdicts", s.handleVerdicts).Methods(http.MethodGet)
	v1.HandleFunc("/categories/{name}", s.handleCategory).Methods(http.MethodGet)
	v1.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding API response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *server) state(e detector.Entry, now int64) CategoryState {
	st := CategoryState{Category: e.Category.String(), Verdict: e.Verdict.String()}
	if e.LastAttack != 0 {
		ago := time.Duration(now - e.LastAttack)
		st.LastAttackAgoMs = ago.Milliseconds()
		if e.Verdict == model.Drop {
			if remaining := s.opts.Engine.Limits().Cooldown - ago; remaining > 0 {
				st.CooldownRemainingMs = remaining.Milliseconds()
			}
		}
	}
	return st
}

func (s *server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	if s.opts.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine is not running")
		return
	}
	now := s.opts.Clock.Now()
	states := s.opts.Engine.States()
	out := make([]CategoryState, 0, len(states))
	for _, e := range states {
		out = append(out, s.state(e, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCategory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine is not running")
		return
	}
	c, err := model.ParseCategory(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	states := s.opts.Engine.States()
	writeJSON(w, http.StatusOK, s.state(states[c], s.opts.Clock.Now()))
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history storage is not configured")
		return
	}
	q := r.URL.Query()
	req := query.HistoryRequest{Category: q.Get("category"), Limit: 100}
	if req.Category != "" {
		if _, err := model.ParseCategory(req.Category); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > query.MaxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", query.MaxHistoryLimit))
			return
		}
		req.Limit = n
	}
	if v := q.Get("attacks_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "attacks_only must be a boolean")
			return
		}
		req.AttacksOnly = b
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 time")
			return
		}
		req.Since = t
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	rows, err := s.opts.History.History(ctx, req)
	if err != nil {
		log.Printf("History query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if rows == nil {
		rows = []query.HistoryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse
	if e := s.opts.Engine; e != nil {
		limits := e.Limits()
		resp.Engine = EngineStats{
			Lanes:        e.Lanes(),
			Aggregations: e.Aggregations(),
			Initialised:  e.WindowStart() != 0,
			Limits: LimitsView{
				WindowSeconds:   limits.Window.Seconds(),
				CooldownSeconds: limits.Cooldown.Seconds(),
				PPSLimit:        limits.PPSLimit,
				BPSLimit:        limits.BPSLimit,
			},
			DroppedGroups: []string{},
		}
		if start := e.WindowStart(); start != 0 {
			resp.Engine.WindowAgeMs = time.Duration(s.opts.Clock.Now() - start).Milliseconds()
		}
		for _, st := range e.States() {
			if st.Verdict == model.Drop {
				resp.Engine.DroppedGroups = append(resp.Engine.DroppedGroups, st.Category.String())
			}
		}
	}
	if s.opts.Dispatch != nil {
		ds := s.opts.Dispatch.Stats()
		resp.Dispatch = &ds
	}
	if s.opts.Reports != nil {
		resp.Reports = s.opts.Reports.Stats()
		resp.Enqueued = s.opts.Reports.Enqueued()
	}
	writeJSON(w, http.StatusOK, resp)
}

func jwtMiddleware(secret []byte) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || tokenString == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
