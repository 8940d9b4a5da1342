package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"notara.org/internal/auth"
	"notara.org/internal/blob"
	"notara.org/internal/docs"
	"notara.org/internal/httpapi"
	"notara.org/internal/ledger/evm"
	"notara.org/internal/mail"
	"notara.org/internal/obs"
	"notara.org/internal/store/pg"
	"notara.org/internal/stream"
	"notara.org/internal/verifiers"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("NOTARA_COMMIT"))

	dsn := requireEnv("NOTARA_PG_DSN")
	secret := requireEnv("NOTARA_AUTH_SECRET")

	db, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	chain, err := evm.Dial(ctx, evm.Config{
		RPCURL:          requireEnv("NOTARA_RPC_URL"),
		ContractAddress: requireEnv("NOTARA_CONTRACT_ADDRESS"),
		OperatorKey:     os.Getenv("NOTARA_OPERATOR_KEY"),
		ConfirmTimeout:  envDuration("NOTARA_CONFIRM_TIMEOUT", 0),
	})
	cancel()
	if err != nil {
		log.Fatalf("dial ledger rpc: %v", err)
	}
	defer chain.Close()

	blobs, err := blob.NewPinata(requireEnv("NOTARA_PINATA_TOKEN"),
		blob.WithGateway(os.Getenv("NOTARA_PINATA_GATEWAY")))
	if err != nil {
		log.Fatalf("configure pinata: %v", err)
	}

	var mailer mail.Sender = mail.Noop{}
	if addr := os.Getenv("NOTARA_SMTP_ADDR"); addr != "" {
		mailer, err = mail.NewSMTP(addr,
			os.Getenv("NOTARA_SMTP_USERNAME"),
			os.Getenv("NOTARA_SMTP_PASSWORD"),
			os.Getenv("NOTARA_SMTP_FROM"))
		if err != nil {
			log.Fatalf("configure smtp: %v", err)
		}
	}

	authSvc, err := auth.NewService(auth.NewPGStore(db), chain, []byte(secret),
		auth.WithSessionTTL(envDuration("NOTARA_SESSION_TTL", time.Hour)))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	verifierSvc := verifiers.NewService(verifiers.NewPGStore(db), chain, authSvc,
		verifiers.WithMailer(mailer))

	events := stream.New()
	docsSvc := docs.NewService(docs.NewPGStore(db), docs.NewPGKeyStore(db), blobs, chain, verifierSvc,
		docs.WithEvents(events))

	api := httpapi.New(httpapi.Config{
		Version:        version,
		AllowedOrigins: splitList(os.Getenv("NOTARA_ALLOWED_ORIGINS")),
		CookieSecure:   envBool("NOTARA_COOKIE_SECURE"),
		MaxUploadBytes: envInt64("NOTARA_MAX_UPLOAD_BYTES", 0),
	}, httpapi.ReadyProbe{DB: db}, authSvc, docsSvc, verifierSvc,
		httpapi.WithChainProbe(chain),
		httpapi.WithStream(events))

	addr := os.Getenv("NOTARA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // SSE connections stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting notara-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

func requireEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required environment variable %s", key)
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return d
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func splitList(raw string) []string {
	var res []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
