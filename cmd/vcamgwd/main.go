// Command vcamgwd is the virtual-camera ONVIF gateway daemon. It loads the
// Config Store, wires the Virtual NIC Manager, Media Server Controller and
// Notifier into a Supervisor, starts every auto-start camera, and serves
// until a termination signal arrives. Adapted from the teacher's
// cmd/onvif-relay/main.go bootstrap: flag-based config path, signal-driven
// graceful shutdown, and soap.StopCleanup() on exit are all kept, but the
// bootstrap now builds a Supervisor instead of a single static Registry and
// Server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BigTonyTones/onvif-gateway/internal/mediaserver"
	"github.com/BigTonyTones/onvif-gateway/internal/notify"
	"github.com/BigTonyTones/onvif-gateway/internal/onvif/soap"
	"github.com/BigTonyTones/onvif-gateway/internal/store"
	"github.com/BigTonyTones/onvif-gateway/internal/supervisor"
	"github.com/BigTonyTones/onvif-gateway/internal/vnic"
)

const shutdownBudget = 20 * time.Second

func main() {
	storePath := flag.String("store", "/config/cameras.json", "path to the camera config store")
	mediaBinary := flag.String("media-binary", "/usr/local/bin/mediamtx", "path to the media server binary")
	mediaConfigPath := flag.String("media-config", "/config/mediaserver.yaml", "path the media server's generated config is written to")
	mediaControlAPI := flag.String("media-api", "http://127.0.0.1:9997", "media server control API base URL")
	mediaDigestUser := flag.String("media-api-username", "", "HTTP Digest username for the media control API, if required")
	mediaDigestPass := flag.String("media-api-password", "", "HTTP Digest password for the media control API, if required")
	logFormat := flag.String("log-format", "json", "log output format: json or console")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", ":9469", "address the Prometheus /metrics endpoint listens on")
	flag.Parse()

	log := buildLogger(*logFormat, *logLevel)

	log.Info().Str("store", *storePath).Msg("loading camera config store")
	st, err := store.Open(*storePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open config store")
	}

	settings := st.Settings()

	vnicMgr := vnic.New(log)
	if !vnicMgr.Supported() {
		log.Warn().Msg("virtual NIC management unsupported on this host; cameras requesting one will fail to start")
	}

	controller := mediaserver.New(
		*mediaBinary, nil, *mediaConfigPath, *mediaControlAPI,
		settings.MediaRTSPPort, settings.MediaHLSPort, settings.MediaAPIPort,
		*mediaDigestUser, *mediaDigestPass, log,
	)

	notifier := notify.New(log)
	sv := supervisor.New(st, vnicMgr, controller, notifier, log)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server exited unexpectedly")
		}
	}()
	defer metricsServer.Close()

	startCtx, startCancel := context.WithTimeout(context.Background(), shutdownBudget)
	if err := sv.StartAll(startCtx); err != nil {
		log.Error().Err(err).Msg("one or more auto-start cameras failed to start")
	}
	startCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer stopCancel()

	if err := sv.StopAll(stopCtx); err != nil {
		log.Warn().Err(err).Msg("stop_all completed with errors")
	}
	if err := controller.Stop(); err != nil {
		log.Warn().Err(err).Msg("media server controller stop failed")
	}
	soap.StopCleanup()

	log.Info().Msg("shutdown complete")
}

func buildLogger(format, level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return logger.With().Str("service", "vcamgwd").Logger()
}
