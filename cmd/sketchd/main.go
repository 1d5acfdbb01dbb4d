package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	logger "github.com/sirupsen/logrus"

	"github.com/sahithikokkula/sketchd/pkg/api"
	"github.com/sahithikokkula/sketchd/pkg/settings"
	"github.com/sahithikokkula/sketchd/pkg/storage"
)

func main() {
	s, err := settings.NewSettings()
	if err != nil {
		logger.Fatalf("failed to load settings: %v", err)
	}
	if err := s.ConfigureLogger(); err != nil {
		logger.Fatalf("failed to configure logger: %v", err)
	}
	if err := run(s); err != nil {
		logger.Fatal(err)
	}
}

func run(s settings.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logger.Fields{
		"db_path":           s.DBPath,
		"compression_level": s.CompressionLevel,
		"error_bound":       s.DefaultErrorBound,
		"confidence":        s.DefaultConfidence,
	}).Info("starting sketchd")

	store, err := storage.Open(ctx, s.DBPath, s.CompressionLevel)
	if err != nil {
		return err
	}
	defer store.Close()

	h := api.NewHandler(store, api.Config{
		DefaultErrorBound: s.DefaultErrorBound,
		DefaultConfidence: s.DefaultConfidence,
		RequestTimeout:    s.RequestTimeout,
	})
	if err := bootstrap(ctx, s, h); err != nil {
		return err
	}
	h.SyncSketchGauge(ctx)

	r := mux.NewRouter()
	api.RegisterRoutes(r, h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("sketchd listening on http://localhost:%d", s.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	logger.Info("server stopped")
	return nil
}

// bootstrap creates the sketches declared in the bootstrap file that do not
// exist yet.
func bootstrap(ctx context.Context, s settings.Settings, h *api.Handler) error {
	b, err := s.LoadBootstrap()
	if err != nil {
		return err
	}
	for _, spec := range b.Sketches {
		_, _, err := h.Create(ctx, api.CreateSketchRequest{
			Name:       spec.Name,
			Kind:       spec.Kind,
			ItemType:   spec.ItemType,
			Fields:     spec.Fields,
			TopN:       spec.TopN,
			ErrorBound: spec.ErrorBound,
			Confidence: spec.Confidence,
		})
		switch {
		case errors.Is(err, storage.ErrExists):
			logger.WithField("sketch", spec.Name).Debug("bootstrap sketch already exists")
		case err != nil:
			return fmt.Errorf("bootstrap sketch %q: %w", spec.Name, err)
		default:
			logger.WithFields(logger.Fields{"sketch": spec.Name, "type": spec.Kind}).Info("bootstrap sketch created")
		}
	}
	return nil
}
