package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"price-map/pkg/detail"
	"price-map/pkg/logger"
	"price-map/pkg/metrics"
)

// Server wires the data tree, the detail endpoints and operational
// routes behind one handler.
type Server struct {
	store          *Store // nil disables /api/transactions
	listings       *ListingIndex
	dataDir        string
	maxDetailLimit int
	log            logger.Logger
}

func New(store *Store, listings *ListingIndex, dataDir string, maxDetailLimit int, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if maxDetailLimit <= 0 {
		maxDetailLimit = 500
	}
	return &Server{
		store:          store,
		listings:       listings,
		dataDir:        dataDir,
		maxDetailLimit: maxDetailLimit,
		log:            log.Named("server"),
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/api/health", s.instrument("health", s.handleHealth)).Methods(http.MethodGet)
	r.Handle("/api/transactions", s.instrument("transactions", s.handleTransactions)).Methods(http.MethodGet)
	r.Handle("/api/listings", s.instrument("listings", s.handleListings)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	fileServer := http.FileServer(http.Dir(s.dataDir))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data/", fileServer))

	return handlers.CombinedLoggingHandler(os.Stdout, r)
}

// instrument records request count and latency per route.
func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		metrics.RecordHTTPRequest(route, strconv.Itoa(sw.status/100*100), time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "transactions store not configured")
		return
	}
	q := detail.TransactionQuery{
		Month: r.URL.Query().Get("month"),
		Mode:  r.URL.Query().Get("mode"),
		Code:  r.URL.Query().Get("code"),
		Limit: s.clampLimit(r.URL.Query().Get("limit"), 100),
	}
	if q.Month == "" || q.Mode == "" || q.Code == "" {
		writeError(w, http.StatusBadRequest, "month, mode and code are required")
		return
	}
	page, err := s.store.Transactions(r.Context(), q)
	if err != nil {
		s.log.Error("transactions query failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "transactions query failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	q := detail.ListingQuery{
		Mode:   r.URL.Query().Get("mode"),
		Code:   r.URL.Query().Get("code"),
		Kind:   r.URL.Query().Get("kind"),
		Limit:  s.clampLimit(r.URL.Query().Get("limit"), 50),
		Offset: offset,
	}
	if q.Mode == "" || q.Code == "" {
		writeError(w, http.StatusBadRequest, "mode and code are required")
		return
	}
	if q.Kind != "" && q.Kind != "sale" && q.Kind != "rent" {
		writeError(w, http.StatusBadRequest, "kind must be sale or rent")
		return
	}
	page, err := s.listings.Query(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) clampLimit(raw string, def int) int {
	limit := def
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > s.maxDetailLimit {
		limit = s.maxDetailLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
