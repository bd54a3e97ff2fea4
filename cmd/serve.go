package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/config"
	"github.com/sells-group/labexam-cli/internal/feedback"
	"github.com/sells-group/labexam-cli/internal/fewshot"
	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/monitoring"
	"github.com/sells-group/labexam-cli/internal/pipeline"
	"github.com/sells-group/labexam-cli/internal/store"
)

const (
	maxBatchBody     = 50 << 20
	maxBatchFiles    = 500
	defaultStatsDays = 30
)

var servePort int

// api serves the batch and review endpoints.
type api struct {
	batches   *pipeline.Service
	feedback  *feedback.Service
	store     store.Store
	collector *monitoring.Collector
	lookback  int
	// ml is nil unless extraction.ml_enabled.
	ml *fewshot.Extractor
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the batch and review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a := newAPI(cfg, st)

		checker := monitoring.NewChecker(a.collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(a, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newAPI(c *config.Config, st store.Store) *api {
	lookback := c.Monitoring.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	ml := initML(c, st)
	return &api{
		batches:   newService(c, st, ml),
		feedback:  feedback.New(st),
		store:     st,
		collector: monitoring.NewCollector(st),
		lookback:  lookback,
		ml:        ml,
	}
}

func buildRouter(a *api, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches", a.createBatch)
		r.Post("/corrections", a.createCorrection)
		r.Get("/corrections", a.listCorrections)
		r.Post("/corrections/{id}/promote", a.promoteCorrection)
		r.Post("/few-shot-examples", a.createFewShotExample)
		r.Get("/stats", a.stats)
		r.Get("/suggestions", a.suggestions)
		r.Get("/metrics", a.metrics)
	})
	return r
}

func (a *api) createBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files []model.RawDocument `json:"files"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "files is required")
		return
	}
	if len(req.Files) > maxBatchFiles {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d files per batch", maxBatchFiles))
		return
	}
	for i, f := range req.Files {
		if f.Filename == "" {
			req.Files[i].Filename = fmt.Sprintf("arquivo_%d.txt", i+1)
		}
	}

	res, err := a.batches.RunBatch(r.Context(), req.Files)
	if err != nil {
		zap.L().Error("batch failed", zap.Int("files", len(req.Files)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "batch failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) createCorrection(w http.ResponseWriter, r *http.Request) {
	var c model.ExamCorrection
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Applied state is only set by promotion.
	c.ID, c.AppliedToCode, c.AppliedAt, c.AppliedBy = "", false, nil, ""

	if err := a.feedback.RecordCorrection(r.Context(), &c); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *api) listCorrections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CorrectionFilter{
		Pending:    q.Get("pending") == "true",
		Laboratory: q.Get("laboratory"),
		Type:       model.CorrectionType(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown correction type %q", filter.Type))
		return
	}

	list, err := a.store.ListCorrections(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []model.ExamCorrection{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) promoteCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target    string `json:"target"`
		AppliedBy string `json:"applied_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target, err := feedback.ParseTarget(req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.feedback.Promote(r.Context(), chi.URLParam(r, "id"), target, req.AppliedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if p.Target == feedback.TargetFewShot {
		a.reloadExamples()
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) createFewShotExample(w http.ResponseWriter, r *http.Request) {
	var e model.MLFewShotExample
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e.ID = ""
	if err := a.feedback.RecordFewShotExample(r.Context(), &e); err != nil {
		writeServiceError(w, err)
		return
	}
	a.reloadExamples()
	writeJSON(w, http.StatusCreated, e)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"), r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := a.feedback.AccuracyReport(r.Context(), since)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *api) suggestions(w http.ResponseWriter, r *http.Request) {
	list, err := a.feedback.Suggestions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []feedback.Suggestion{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) metrics(w http.ResponseWriter, r *http.Request) {
	hours := a.lookback
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	snap, err := a.collector.Collect(r.Context(), hours)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := metricsResponse{MetricsSnapshot: snap}
	if a.ml != nil {
		s := a.ml.Stats()
		resp.ML = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

type metricsResponse struct {
	*monitoring.MetricsSnapshot
	ML *fewshot.Stats `json:"ml,omitempty"`
}

// reloadExamples makes new few-shot examples visible to the next batch.
func (a *api) reloadExamples() {
	if a.ml != nil {
		a.ml.Invalidate()
	}
}

// parseSince accepts an ISO date or a day count; neither means the default window.
func parseSince(date, days string) (time.Time, error) {
	if date != "" {
		t, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return time.Time{}, eris.Errorf("since must be YYYY-MM-DD, got %q", date)
		}
		return t, nil
	}
	n := defaultStatsDays
	if days != "" {
		v, err := strconv.Atoi(days)
		if err != nil || v <= 0 {
			return time.Time{}, eris.Errorf("days must be a positive integer, got %q", days)
		}
		n = v
	}
	return time.Now().UTC().AddDate(0, 0, -n), nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, feedback.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, feedback.ErrAlreadyApplied):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, feedback.ErrNotPromotable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		zap.L().Error("api request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
