package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"aftervisit.org/internal/audit"
	"aftervisit.org/internal/auth"
	"aftervisit.org/internal/config"
	"aftervisit.org/internal/httpapi"
	"aftervisit.org/internal/idp"
	"aftervisit.org/internal/obs"
	"aftervisit.org/internal/store/pg"
	"aftervisit.org/internal/throttle"
)

var version = "0.4.1"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Register metrics and the JSON logger before anything emits.
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("AV_BUILD_COMMIT"))

	if cfg.PostgresDSN == "" {
		log.Fatalf("AV_PG_DSN is required")
	}
	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	tokens := auth.NewTokenService(auth.TokenConfig{Secret: cfg.AuthSecret})
	if tokens.UsingFallbackSecret() {
		log.Printf("WARNING: AV_AUTH_SECRET is not set; session tokens are signed with the built-in development secret")
	}

	authenticator, err := auth.NewAuthenticator(store, store, tokens,
		auth.WithLockoutHook(func(ctx context.Context, user *auth.User, attempts int) {
			obs.ObserveLockout()
			_ = audit.LogEvent(ctx, "auth.account.locked", map[string]any{
				"tenant_id": user.TenantID,
				"user_id":   user.ID,
				"username":  user.Username,
				"attempts":  attempts,
			})
		}),
	)
	if err != nil {
		log.Fatalf("authenticator: %v", err)
	}

	delegated := auth.NewDelegatedVerifier(idp.NewClient(), auth.DelegatedVerifierConfig{
		Audience: cfg.IDPAudience,
	})

	// Pre-auth login throttle; the service runs without it when Redis is not
	// configured.
	var limiter *throttle.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = throttle.New(rdb, throttle.Config{
			MaxAttempts: cfg.ThrottleMaxAttempts,
			Window:      cfg.ThrottleWindow,
			PerIP:       true,
		})
		defer rdb.Close()
	}

	api := httpapi.New(httpapi.Deps{
		ReadyProbe:         httpapi.ReadyProbe{DB: store.DB()},
		Version:            version,
		Authenticator:      authenticator,
		Tokens:             tokens,
		Delegated:          delegated,
		Users:              store,
		Tenants:            store,
		Throttle:           limiter,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting aftervisit-api %s on %s", version, srv.Addr)

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
