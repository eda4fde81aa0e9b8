package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aquadecl/releve-core/internal/fault"
	"github.com/aquadecl/releve-core/internal/model"
	"github.com/aquadecl/releve-core/internal/queue"
	"github.com/aquadecl/releve-core/internal/series"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read API and enqueue endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		tc, err := initTemporal()
		if err != nil {
			return err
		}
		defer tc.Close()

		api := &apiHandlers{
			series:   eng.series,
			ledger:   eng.ledger,
			enqueuer: queue.NewClient(tc, cfg.Temporal.DebounceSeconds),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(api),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// seriesReader is the slice of the series store the API reads from.
type seriesReader interface {
	ListSeries(ctx context.Context, f series.Filter) ([]model.Series, error)
	GetSeriesByID(ctx context.Context, id string) (*model.Series, error)
	GetSeriesValuesInRange(ctx context.Context, seriesID, start, end string) (*series.ValuesResult, error)
}

// ledgerReader exposes the integration rows of an attachment.
type ledgerReader interface {
	ListByAttachment(ctx context.Context, attachmentID string) ([]model.Integration, error)
}

type apiHandlers struct {
	series   seriesReader
	ledger   ledgerReader
	enqueuer queue.Enqueuer
}

func newRouter(api *apiHandlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/series", api.listSeries)
	r.Get("/series/{id}", api.getSeries)
	r.Get("/series/{id}/values", api.getSeriesValues)
	r.Get("/attachments/{id}/integrations", api.listIntegrations)

	r.Post("/dossiers/{id}/consolidate", api.enqueueConsolidation)
	r.Post("/attachments/{id}/ingest", api.enqueueIngestion)

	return r
}

func (h *apiHandlers) listSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := series.Filter{
		Tenant:             q.Get("tenant"),
		AttachmentID:       q.Get("attachment_id"),
		OperatorID:         q.Get("operator_id"),
		Start:              q.Get("start"),
		End:                q.Get("end"),
		OnlyIntegratedDays: q.Get("integrated") == "true",
	}
	if points := q.Get("point_ids"); points != "" {
		f.PointIDs = strings.Split(points, ",")
	}

	out, err := h.series.ListSeries(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []model.Series{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": out})
}

func (h *apiHandlers) getSeries(w http.ResponseWriter, r *http.Request) {
	sr, err := h.series.GetSeriesByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

func (h *apiHandlers) getSeriesValues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.series.GetSeriesValuesInRange(r.Context(), chi.URLParam(r, "id"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *apiHandlers) listIntegrations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.ListByAttachment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []model.Integration{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"integrations": rows})
}

func (h *apiHandlers) enqueueConsolidation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.enqueuer.EnqueueConsolidation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "dossier_id": id})
}

func (h *apiHandlers) enqueueIngestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.enqueuer.EnqueueIngestion(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "attachment_id": id})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case fault.IsValidation(err):
		status = http.StatusBadRequest
	case fault.IsNotFound(err):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
