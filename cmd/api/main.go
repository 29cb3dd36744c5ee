package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentra.org/internal/auth"
	"sentra.org/internal/httpapi"
	"sentra.org/internal/ledger"
	"sentra.org/internal/oauth"
	"sentra.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("SENTRA_COMMIT"))

	repo := auth.NewInMemoryRepository()
	svc, err := auth.NewService(repo)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	opts := []httpapi.Option{httpapi.WithVersion(version)}

	// Google sign-in is optional; enabled when client credentials are set.
	if clientID := os.Getenv("SENTRA_GOOGLE_CLIENT_ID"); clientID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		google, err := oauth.NewGoogle(ctx,
			clientID,
			os.Getenv("SENTRA_GOOGLE_CLIENT_SECRET"),
			os.Getenv("SENTRA_GOOGLE_REDIRECT_URL"),
		)
		cancel()
		if err != nil {
			log.Fatalf("google provider: %v", err)
		}
		opts = append(opts, httpapi.WithProvider(google))
	}

	api := httpapi.New(svc, ledger.NewInMemory(), opts...)

	addr := os.Getenv("SENTRA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting sentra-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
