package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helix-research/pipeline-cli/internal/model"
	"github.com/helix-research/pipeline-cli/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scan API server",
	Long:  "Serves POST /scan, streaming per-company progress as Server-Sent Events, and GET /health.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		r.Post("/scan", handleScan)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// handleScan runs a scan for the posted companies and streams progress and
// results as SSE events: "progress" per pipeline stage, one "result" with
// the full outcome, then "complete".
func handleScan(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Companies []model.Company `json:"companies"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if len(body.Companies) == 0 {
		http.Error(w, `{"error":"companies is required"}`, http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	runID := uuid.NewString()
	events := make(chan model.ProgressEvent, 256)

	env, err := initScanEnv("serve", pipeline.WithProgress(func(ev model.ProgressEvent) {
		ev.RunID = runID
		events <- ev
	}))
	if err != nil {
		sse.writeEvent("error", map[string]string{"error": err.Error()})
		return
	}
	defer env.Close()

	zap.L().Info("scan accepted",
		zap.String("run_id", runID),
		zap.Int("companies", len(body.Companies)),
	)
	sse.writeEvent("accepted", map[string]any{
		"run_id":    runID,
		"status":    model.RunStatusQueued,
		"companies": len(body.Companies),
	})

	done := make(chan []model.CompanyResult, 1)
	go func() {
		done <- env.Pipeline.RunBatch(req.Context(), body.Companies)
		close(events)
	}()

	for ev := range events {
		sse.writeEvent("progress", ev)
	}

	results := <-done
	status := string(model.RunStatusComplete)
	for _, r := range results {
		if r.Err != "" {
			status = string(model.RunStatusFailed)
			break
		}
	}

	sse.writeEvent("result", model.Run{
		ID:        runID,
		Companies: body.Companies,
		Status:    model.RunStatus(status),
		Results:   results,
	})
	sse.writeEvent("complete", map[string]string{"run_id": runID, "status": status})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
