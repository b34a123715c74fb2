// Server runs the demo accounts service with the server-side telemetry
// producer wired in. Pings go to stdout as mozlog lines, to an OTel collector
// when OTLP_ENDPOINT is set, and to Kafka when KAFKA_BROKERS is set.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accounts-telemetry/internal/config"
	"accounts-telemetry/internal/consent"
	"accounts-telemetry/internal/glean"
	"accounts-telemetry/internal/glean/transport"
	otelsetup "accounts-telemetry/internal/otel"
	"accounts-telemetry/internal/security"
	"accounts-telemetry/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "accounts-telemetry", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	var sinks []glean.Sink
	if cfg.OTLPEndpoint != "" {
		sinks = append(sinks, transport.NewOTelSink(providers.LoggerProvider))
	} else {
		sinks = append(sinks, transport.NewLogSink(os.Stdout, cfg.GleanLoggerAppName))
	}
	var kafkaSink *transport.KafkaSink
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaSink = transport.NewKafkaSink(brokers, cfg.KafkaTopic)
		sinks = append(sinks, kafkaSink)
	}

	metrics := glean.NewServerMetrics(glean.Config{
		Enabled:           cfg.GleanEnabled,
		ApplicationID:     cfg.GleanApplicationID,
		Channel:           cfg.GleanChannel,
		AppDisplayVersion: cfg.GleanAppDisplayVersion,
		OAuthClientIDs:    cfg.OAuthClientIDMap(),
	}, transport.Tee(sinks...))

	parser, err := security.NewTokenParser(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("security: %v", err)
	}
	// A collection policy that does not compile is a startup failure, not a
	// per-request one.
	checker, err := consent.NewOPAChecker(ctx)
	if err != nil {
		log.Fatalf("consent: %v", err)
	}

	handler := server.New(metrics)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Metrics(parser, checker, nil)(handler.Routes()),
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if err := kafkaSink.Close(); err != nil {
		log.Printf("kafka: close: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: %v", err)
	}
	log.Println("stopped")
}
