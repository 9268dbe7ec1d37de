package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/surge-dashboard/internal/analytics"
	"github.com/example/surge-dashboard/internal/booking"
	"github.com/example/surge-dashboard/internal/cache"
	"github.com/example/surge-dashboard/internal/feed"
	"github.com/example/surge-dashboard/internal/generator"
	"github.com/example/surge-dashboard/internal/models"
	"github.com/example/surge-dashboard/internal/payments"
	"github.com/example/surge-dashboard/internal/storage"
	"github.com/example/surge-dashboard/internal/surge"
)

// Deps are the services behind the dashboard API. Cache, Settler and Feed
// are optional; their routes answer 503 when unset.
type Deps struct {
	Store     storage.Store
	Estimator *surge.Estimator
	Generator *generator.Generator
	Recorder  *surge.Recorder
	Quoter    *surge.Quoter
	Analytics *analytics.Service
	Bookings  *booking.Service
	Settler   *payments.Settler
	Cache     *cache.SnapshotCache
	Feed      *feed.Hub
}

type Server struct {
	Deps
	logger *slog.Logger
	mux    *mux.Router
	// Generator advances a shared random source.
	seedMu sync.Mutex
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Deps: deps, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Handle("/ws/surge", s.wsHandler())

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/seed", s.handleSeed).Methods("POST")
	api.HandleFunc("/zones", s.handleZones).Methods("GET")
	api.HandleFunc("/surge", s.handleSurgeAll).Methods("GET")
	api.HandleFunc("/surge/history", s.handleSurgeHistory).Methods("GET")
	api.HandleFunc("/surge/latest", s.handleSurgeLatest).Methods("GET")
	api.HandleFunc("/surge/alerts", s.handleSurgeAlerts).Methods("GET")
	api.HandleFunc("/surge/{zone_id}", s.handleSurgeZone).Methods("GET")
	api.HandleFunc("/fares/quote", s.handleQuote).Methods("POST")
	api.HandleFunc("/rides", s.handleRides).Methods("GET")
	api.HandleFunc("/rides", s.handleRequestRide).Methods("POST")
	api.HandleFunc("/rides/{ride_id}", s.handleRide).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/settle", s.handleSettle).Methods("POST")
	api.HandleFunc("/drivers", s.handleDrivers).Methods("GET")
	api.HandleFunc("/dashboard", s.handleDashboard).Methods("GET")
	api.HandleFunc("/dashboard/{view}", s.handleDashboard).Methods("GET")
	api.HandleFunc("/analytics", s.handleAnalytics).Methods("GET")
	api.HandleFunc("/analytics/{view}", s.handleAnalytics).Methods("GET")
	api.HandleFunc("/integrity", s.handleIntegrity).Methods("GET")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) wsHandler() http.Handler {
	if s.Feed == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "surge feed is not enabled"})
		})
	}
	return s.Feed
}

type seedRequest struct {
	generator.Counts
	Reset bool `json:"reset"`
}

type seedResponse struct {
	BatchID string           `json:"batch_id"`
	Counts  generator.Counts `json:"counts"`
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	if err := req.Counts.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Reset {
		if err := s.Store.Reset(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		if s.Quoter != nil && s.Quoter.Locator != nil {
			if err := s.Quoter.Locator.Reset(r.Context()); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		if s.Cache != nil {
			if err := s.Cache.Reset(r.Context()); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
	}
	b, err := s.Generator.Generate(r.Context(), req.Counts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, seedResponse{
		BatchID: b.ID,
		Counts: generator.Counts{
			Zones:    len(b.Zones),
			Vehicles: len(b.Vehicles),
			Drivers:  len(b.Drivers),
			Riders:   len(b.Riders),
			Rides:    len(b.Rides),
		},
	})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.Store.ReadZones(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

type surgeResponse struct {
	Records  []models.SurgeRecord `json:"records"`
	Failed   []string             `json:"failed,omitempty"`
	Recorded bool                 `json:"recorded"`
}

// handleSurgeAll estimates every zone. Zones that fail are listed in
// "failed"; ?snapshot=true also records the result.
func (s *Server) handleSurgeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	zones, err := s.Store.ReadZones(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.Estimator.EstimateAll(ctx, zones)
	resp := surgeResponse{Records: recs}
	if err != nil {
		s.requestLogger(r.Context()).Warn("surge estimate incomplete", "zones", len(zones), "estimated", len(recs), "error", err)
		resp.Failed = failedZones(zones, recs)
		if len(recs) == 0 && len(zones) > 0 {
			s.writeError(w, r, err)
			return
		}
	}
	if snapshot, _ := strconv.ParseBool(r.URL.Query().Get("snapshot")); snapshot && s.Recorder != nil {
		if err := s.Recorder.Record(ctx, recs); err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Recorded = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func failedZones(zones []models.Zone, recs []models.SurgeRecord) []string {
	ok := make(map[string]bool, len(recs))
	for _, r := range recs {
		ok[r.ZoneID] = true
	}
	var out []string
	for _, z := range zones {
		if !ok[z.ID] {
			out = append(out, z.ID)
		}
	}
	return out
}

func (s *Server) handleSurgeZone(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Estimator.Estimate(r.Context(), mux.Vars(r)["zone_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleSurgeHistory lists stored snapshots. since accepts RFC 3339 or a
// duration back from now ("2h").
func (s *Server) handleSurgeHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseSince(q.Get("since"), time.Now().UTC())
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	recs, err := s.Store.ListSnapshots(r.Context(), q.Get("zone"), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func parseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) handleSurgeLatest(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "snapshot cache is not enabled"})
		return
	}
	var (
		recs []models.SurgeRecord
		err  error
	)
	if zone := r.URL.Query().Get("zone"); zone != "" {
		recs, err = s.Cache.History(r.Context(), zone, time.Time{})
	} else {
		recs, err = s.Cache.Latest(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSurgeAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.Analytics.Alerts(r.Context())
	if err != nil && len(alerts) == 0 {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.requestLogger(r.Context()).Warn("surge alerts incomplete", "error", err)
	}
	if alerts == nil {
		alerts = []models.SurgeRecord{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

type quoteRequest struct {
	Pickup  models.Coord `json:"pickup"`
	Dropoff models.Coord `json:"dropoff"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	q, err := s.Quoter.Quote(r.Context(), req.Pickup, req.Dropoff)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleRides(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	rides, err := s.Store.ListRides(r.Context(), statuses)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rides)
}

func parseStatuses(v string) ([]models.RideStatus, error) {
	var out []models.RideStatus
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		st := models.RideStatus(p)
		if !st.Valid() {
			return nil, errors.New("unknown ride status " + p)
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Server) handleRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["ride_id"]
	ride, ok, err := s.Store.GetRide(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "ride not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if !s.decode(w, r, &req) {
		return
	}
	ride, err := s.Bookings.Request(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	if s.Settler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "payments are not configured"})
		return
	}
	out, err := s.Settler.Settle(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		drivers []models.Driver
		err     error
	)
	if zone, status := q.Get("zone"), q.Get("status"); zone != "" || status != "" {
		drivers, err = s.Store.QueryDrivers(r.Context(), zone, models.DriverStatus(status))
	} else {
		drivers, err = s.Store.ListDrivers(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

var dashboardViews = map[string]func(analytics.Dashboard) any{
	"summary":        func(d analytics.Dashboard) any { return d.Summary },
	"ride-status":    func(d analytics.Dashboard) any { return d.RideStatus },
	"driver-status":  func(d analytics.Dashboard) any { return d.DriverStatus },
	"revenue":        func(d analytics.Dashboard) any { return d.DailyRevenue },
	"top-earners":    func(d analytics.Dashboard) any { return d.TopEarners },
	"driver-ratings": func(d analytics.Dashboard) any { return d.DriverRatings },
}

var analyticsViews = map[string]func(analytics.Report) any{
	"efficiency":        func(r analytics.Report) any { return r.Efficiency },
	"revenue-by-status": func(r analytics.Report) any { return r.RevenueByStatus },
	"fare-per-km":       func(r analytics.Report) any { return r.FarePerKm },
	"ride-ratings":      func(r analytics.Report) any { return r.RideRatings },
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	pick, ok := dashboardViews[view]
	if view != "" && !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown dashboard view " + view})
		return
	}
	d, err := s.Analytics.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if view == "" {
		writeJSON(w, http.StatusOK, d)
		return
	}
	writeJSON(w, http.StatusOK, pick(d))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]
	pick, ok := analyticsViews[view]
	if view != "" && !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown analytics view " + view})
		return
	}
	rep, err := s.Analytics.Report(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if view == "" {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	writeJSON(w, http.StatusOK, pick(rep))
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	if err := s.Analytics.Integrity(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type errorBody struct {
	Error      string             `json:"error"`
	Missing    []string           `json:"missing,omitempty"`
	Violations []models.Violation `json:"violations,omitempty"`
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return badRequestError{err: err} }

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, badRequest(err))
		return false
	}
	return true
}

// writeError maps domain errors to status codes. Anything unrecognised is a
// 500 and is logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		prereq    *models.PrerequisiteError
		zone      *models.InvalidZoneError
		integrity *models.DataIntegrityError
		bad       badRequestError
	)
	switch {
	case errors.As(err, &bad):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &prereq):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Missing: prereq.Missing})
	case errors.As(err, &zone):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &integrity):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Violations: integrity.Violations})
	case errors.Is(err, surge.ErrOutsideZones), errors.Is(err, booking.ErrUnknownRider):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, payments.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, payments.ErrNotPayable):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		writeJSON(w, 499, errorBody{Error: "request cancelled"})
	default:
		s.requestLogger(r.Context()).Error("request failed", "route", routeTemplate(r), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
