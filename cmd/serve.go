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
	"golang.org/x/time/rate"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/report"
	"github.com/sells-group/forecast-cli/internal/store"
)

// maxBodyBytes bounds request bodies; profiles and requests are small.
const maxBodyBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forecast HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		api := &apiServer{svc: newService(cfg), store: st, save: cfg.Server.SaveResults}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(api, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer holds the handler dependencies. store may be nil, in which case
// forecasts are not persisted and the read endpoints answer 503.
type apiServer struct {
	svc   *forecast.Service
	store store.Store
	save  bool
}

// forecastRequest is the POST /v1/forecasts body: a forecast request with an
// optional explicit profile that replaces the generated one.
type forecastRequest struct {
	forecast.Request
	Profile *model.CompanyProfile `json:"profile,omitempty"`
}

// newRouter builds the HTTP API. Every /v1 route shares one token bucket.
func newRouter(api *apiServer, sc config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: sc.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiter := rate.NewLimiter(rate.Limit(sc.RatePerSecond), sc.Burst)
	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(limiter))
		r.Post("/forecasts", api.createForecast)
		r.Get("/forecasts", api.listForecasts)
		r.Get("/forecasts/{id}", api.getForecast)
		r.Get("/forecasts/{id}/report", api.getReport)
		r.Delete("/forecasts/{id}", api.deleteForecast)
		r.Post("/profiles", api.createProfile)
	})
	return r
}

// rateLimit rejects requests with 429 once the shared bucket is empty.
func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *apiServer) createForecast(w http.ResponseWriter, r *http.Request) {
	var body forecastRequest
	if !decodeBody(w, r, &body) {
		return
	}

	var (
		res *forecast.Result
		err error
	)
	if body.Profile != nil {
		res, err = a.svc.RunProfile(r.Context(), body.Profile, body.Request)
	} else {
		res, err = a.svc.Run(r.Context(), body.Request)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if a.save && a.store != nil {
		if err := a.store.SaveForecast(r.Context(), res); err != nil {
			zap.L().Error("save forecast", zap.String("id", res.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not save forecast")
			return
		}
	}

	writeJSON(w, http.StatusCreated, res)
}

func (a *apiServer) listForecasts(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}

	q := r.URL.Query()
	filter := store.ForecastFilter{
		Industry:        q.Get("industry"),
		Size:            q.Get("size"),
		MarketCondition: q.Get("market_condition"),
		Scenario:        q.Get("scenario"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
			return
		}
		*dst = n
	}

	list, err := a.store.ListForecasts(r.Context(), filter)
	if err != nil {
		zap.L().Error("list forecasts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list forecasts")
		return
	}
	if list == nil {
		list = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"forecasts": list})
}

func (a *apiServer) getForecast(w http.ResponseWriter, r *http.Request) {
	res, ok := a.loadForecast(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *apiServer) getReport(w http.ResponseWriter, r *http.Request) {
	res, ok := a.loadForecast(w, r)
	if !ok {
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		if err := report.WriteMarkdown(w, res); err != nil {
			zap.L().Error("write report", zap.String("id", res.ID), zap.Error(err))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.ID+".xlsx"))
		if err := report.WriteXLSX(w, res); err != nil {
			zap.L().Error("write xlsx", zap.String("id", res.ID), zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be markdown or xlsx")
	}
}

func (a *apiServer) deleteForecast(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.store.DeleteForecast(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "forecast not found")
			return
		}
		zap.L().Error("delete forecast", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete forecast")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) createProfile(w http.ResponseWriter, r *http.Request) {
	var req forecast.Request
	if !decodeBody(w, r, &req) {
		return
	}

	p, effective, err := a.svc.Profile(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Request:                 effective,
		Profile:                 p,
		CostRatioExceedsRevenue: p.CostRatio() > 1,
	})
}

func (a *apiServer) requireStore(w http.ResponseWriter) bool {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "forecast store is not configured")
		return false
	}
	return true
}

func (a *apiServer) loadForecast(w http.ResponseWriter, r *http.Request) (*forecast.Result, bool) {
	if !a.requireStore(w) {
		return nil, false
	}
	id := chi.URLParam(r, "id")
	res, err := a.store.GetForecast(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "forecast not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("get forecast", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load forecast")
		return nil, false
	}
	return res, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps forecast errors to status codes: bad categories and
// parameters are the caller's fault, a cancelled request gets no body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, forecast.ErrInvalidCategory), errors.Is(err, forecast.ErrInvalidParameter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		zap.L().Info("forecast request cancelled", zap.String("request_id", middleware.GetReqID(r.Context())))
	default:
		zap.L().Error("forecast failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "forecast failed")
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
