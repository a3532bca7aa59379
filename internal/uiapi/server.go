package uiapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gridsched/gridsched/internal/engine"
	"github.com/gridsched/gridsched/internal/metrics"
	"github.com/gridsched/gridsched/internal/planio"
	"github.com/gridsched/gridsched/internal/store"
)

// Server exposes the scheduler over HTTP: one-shot optimization, the
// stored device roster and tariff plans, and the run history.
type Server struct {
	store     *store.Store
	optimizer *engine.Optimizer
	collector *metrics.Collector
	log       zerolog.Logger
}

func NewServer(st *store.Store, optimizer *engine.Optimizer, collector *metrics.Collector, log zerolog.Logger) *Server {
	return &Server{
		store:     st,
		optimizer: optimizer,
		collector: collector,
		log:       log.With().Str("component", "uiapi").Logger(),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/optimize", s.handleOptimize)
		r.Get("/devices", s.handleGetDevices)
		r.Post("/devices", s.handleCreateDevice)
		r.Get("/devices/{id}", s.handleGetDevice)
		r.Put("/devices/{id}", s.handleUpdateDevice)
		r.Delete("/devices/{id}", s.handleDeleteDevice)
		r.Get("/plans/{name}", s.handleGetPlan)
		r.Put("/plans/{name}", s.handleUpdatePlan)
		r.Get("/runs", s.handleGetRuns)
		r.Post("/runs", s.handleCreateRun)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": "1.0.0",
	})
}

// handleOptimize runs a one-shot optimization over an input document
// posted in the request body. Nothing is persisted.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var in planio.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.optimizer.Optimize(in.Rates, in.Devices, in.MaxPower)
	if err != nil {
		s.collector.RecordFailure()
		respondError(w, optimizeStatus(err), err.Error())
		return
	}
	s.collector.RecordSuccess(len(in.Devices), res.Bill.Total)

	respondJSON(w, http.StatusOK, planio.FormatResult(res))
}

// optimizeStatus maps scheduling failures to HTTP statuses. Both cases
// are problems with the submitted data, not the server.
func optimizeStatus(err error) int {
	var unsched *engine.UnschedulableDeviceError
	if errors.As(err, &unsched) {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, engine.ErrBadCoverage) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.GetDevices()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, devices)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var device engine.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if device.ID == "" {
		device.ID = uuid.NewString()
	}

	if err := device.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SaveDevice(device); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, device)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.store.GetDevice(chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, device)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var device engine.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device.ID = chi.URLParam(r, "id")
	if err := device.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SaveDevice(device); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, device)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteDevice(id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "deleted", "id": id})
}

// PlanRequest is the body of a tariff plan update.
type PlanRequest struct {
	Rates    []engine.TariffRange `json:"rates"`
	MaxPower *float64             `json:"maxPower,omitempty"`
}

// PlanResponse is a stored tariff plan.
type PlanResponse struct {
	Name     string               `json:"name"`
	Rates    []engine.TariffRange `json:"rates"`
	MaxPower *float64             `json:"maxPower,omitempty"`
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rates, maxPower, err := s.store.GetTariffPlan(name)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "plan not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, PlanResponse{Name: name, Rates: rates, MaxPower: maxPower})
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var plan PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, rate := range plan.Rates {
		if err := rate.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := engine.BuildTimeline(plan.Rates).Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if plan.MaxPower != nil && *plan.MaxPower < 0 {
		respondError(w, http.StatusBadRequest, "maxPower must not be negative")
		return
	}

	if err := s.store.SaveTariffPlan(name, plan.Rates, plan.MaxPower); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, PlanResponse{Name: name, Rates: plan.Rates, MaxPower: plan.MaxPower})
}

// RunRequest asks for an optimization of the stored device roster
// against a stored tariff plan; the result is persisted.
type RunRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Plan == "" {
		req.Plan = "default"
	}

	rates, maxPower, err := s.store.GetTariffPlan(req.Plan)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "plan not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	devices, err := s.store.GetDevices()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(devices) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no devices configured")
		return
	}

	res, err := s.optimizer.Optimize(rates, devices, maxPower)
	if err != nil {
		s.collector.RecordFailure()
		respondError(w, optimizeStatus(err), err.Error())
		return
	}
	s.collector.RecordSuccess(len(devices), res.Bill.Total)

	run := store.Run{
		ID:        uuid.NewString(),
		PlanName:  req.Plan,
		Input:     planio.Input{Rates: rates, Devices: devices, MaxPower: maxPower},
		Output:    planio.FormatResult(res),
		TotalCost: res.Bill.Total,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveRun(run); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("plan", run.PlanName).
		Int("devices", len(devices)).
		Float64("total_cost", run.TotalCost).
		Msg("run saved")

	respondJSON(w, http.StatusCreated, run)
}

func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.store.GetRuns(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
