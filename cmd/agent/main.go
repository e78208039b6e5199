// Agent runs the headless hybrid-workforce desktop agent.
// Set API_BASE_URL, and AGENT_EMAIL/AGENT_PASSWORD for the first login;
// later runs resume the persisted session. OTLP_ENDPOINT enables metrics.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hybrid-workforce/agent/internal/agent"
	"hybrid-workforce/agent/internal/config"
	"hybrid-workforce/agent/internal/telemetry"
	"hybrid-workforce/agent/internal/telemetry/otel"
)

const serviceName = "hybrid-workforce-agent"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("agent: telemetry setup: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("agent: telemetry shutdown: %v", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("agent: metrics: %v", err)
	}

	ag, err := agent.New(cfg, metrics)
	if err != nil {
		log.Fatalf("agent: %v", err)
	}
	defer ag.Close()

	sess, err := ag.RestoreSession(ctx)
	if err != nil {
		log.Printf("agent: restore session: %v", err)
	}
	if sess == nil {
		email := os.Getenv("AGENT_EMAIL")
		password := os.Getenv("AGENT_PASSWORD")
		if email == "" || password == "" {
			log.Fatal("agent: no stored session; set AGENT_EMAIL and AGENT_PASSWORD to log in")
		}
		sess, err = ag.Login(ctx, email, password)
		if err != nil {
			log.Fatalf("agent: login: %v", err)
		}
	}
	log.Printf("agent: running as %s (%s) on device %s", sess.User.Email, sess.User.Role, sess.DeviceID)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("agent: shutting down...")
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("agent: stopped")
			return
		case st := <-ag.Updates():
			if st.QueueDegraded {
				log.Printf("agent: event queue degraded (app=%s idle=%ds)", st.AppName, st.IdleSeconds)
			}
			if st.LastScreenshotErr != "" {
				log.Printf("agent: screenshot failed: %s", st.LastScreenshotErr)
			}
		}
	}
}
