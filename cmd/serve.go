package main

import (
	"context"
	"encoding/json"
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

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/scheduler"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the health engine HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(ctx, env.Store, env.Scheduler),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the API routes. batchCtx is the lifetime context for
// asynchronously triggered batches, decoupled from the triggering request.
func newRouter(batchCtx context.Context, st store.Store, sched *scheduler.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/recalculate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Customers []string `json:"customers"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		go func() {
			result, err := sched.RunBatch(batchCtx, req.Customers)
			if err != nil {
				zap.L().Error("triggered batch failed to start", zap.Error(err))
				return
			}
			zap.L().Info("triggered batch finished",
				zap.String("state", string(result.State)),
				zap.Int("succeeded", result.Succeeded),
				zap.Int("failed", result.Failed))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	r.Get("/customers/{id}/score", func(w http.ResponseWriter, r *http.Request) {
		snap, err := st.GetLatestSnapshot(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read snapshot failed")
			return
		}
		if snap == nil {
			writeError(w, http.StatusNotFound, "no snapshots for customer")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/customers/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		page, err := st.ListSnapshots(r.Context(), chi.URLParam(r, "id"), limit, r.URL.Query().Get("before"))
		if err != nil {
			if eris.Is(err, store.ErrBadCursor) {
				writeError(w, http.StatusBadRequest, "invalid cursor")
				return
			}
			writeError(w, http.StatusInternalServerError, "list snapshots failed")
			return
		}
		writeJSON(w, http.StatusOK, page)
	})

	r.Get("/customers/{id}/alerts", func(w http.ResponseWriter, r *http.Request) {
		alerts, err := st.ListAlerts(r.Context(), chi.URLParam(r, "id"), 100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list alerts failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
	})

	r.Get("/config/thresholds", func(w http.ResponseWriter, r *http.Request) {
		stored, err := st.GetThresholdConfig(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read config failed")
			return
		}
		if stored == nil {
			writeError(w, http.StatusNotFound, "no threshold override stored")
			return
		}
		writeJSON(w, http.StatusOK, stored)
	})

	r.Put("/config/thresholds", func(w http.ResponseWriter, r *http.Request) {
		var tc config.ThresholdConfig
		if err := json.NewDecoder(r.Body).Decode(&tc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := config.ValidateThresholds(tc); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := st.SetThresholdConfig(r.Context(), tc); err != nil {
			writeError(w, http.StatusInternalServerError, "write config failed")
			return
		}
		writeJSON(w, http.StatusOK, tc)
	})

	r.Get("/config/alert-rules", func(w http.ResponseWriter, r *http.Request) {
		stored, err := st.GetAlertRuleConfig(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read config failed")
			return
		}
		if stored == nil {
			writeError(w, http.StatusNotFound, "no alert rule override stored")
			return
		}
		writeJSON(w, http.StatusOK, stored)
	})

	r.Put("/config/alert-rules", func(w http.ResponseWriter, r *http.Request) {
		var ac config.AlertRuleConfig
		if err := json.NewDecoder(r.Body).Decode(&ac); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := config.ValidateAlertRules(ac); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := st.SetAlertRuleConfig(r.Context(), ac); err != nil {
			writeError(w, http.StatusInternalServerError, "write config failed")
			return
		}
		writeJSON(w, http.StatusOK, ac)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
