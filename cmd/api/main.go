package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wablast/internal/config"
	"wablast/internal/dispatch"
	"wablast/internal/httpserver"
	"wablast/internal/logging"
	"wablast/internal/observability"
	"wablast/internal/providers/wagateway"
	"wablast/internal/session"
	"wablast/internal/upload"
)

func main() {
	cfg := config.LoadAPI()
	log := logging.Init("api", cfg.LogFormat)

	observability.Register(prometheus.DefaultRegisterer)

	uploads, err := upload.New(cfg.UploadDir)
	if err != nil {
		slog.Error("upload dir init failed", "err", err, "dir", cfg.UploadDir)
		os.Exit(1)
	}

	factory := wagateway.NewFactory(wagateway.Config{
		BaseURL:      cfg.GatewayBaseURL,
		Timeout:      cfg.GatewayTimeout,
		PollInterval: cfg.GatewayPollInterval,
		SendRPS:      cfg.GatewayRPS,
		SendBurst:    cfg.GatewayBurst,
	}, log)

	registry := session.NewRegistry(factory, log)
	engine := &dispatch.Engine{
		Delay:           cfg.SendDelay,
		SendTimeout:     cfg.SendTimeout,
		RecipientSuffix: cfg.RecipientSuffix,
		Log:             log,
	}

	s := httpserver.New()
	api := &httpserver.API{
		Registry:  registry,
		Engine:    engine,
		Uploads:   uploads,
		MaxUpload: cfg.MaxUploadBytes,
	}
	api.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second))

	handler := httpserver.Logging(
		httpserver.Metrics(observability.APIRequests)(
			httpserver.CORS(cfg.CORSOrigin)(s.Mux)))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}
	go func() {
		slog.Info("metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port, "gateway", cfg.GatewayBaseURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}
