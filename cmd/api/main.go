// IranDargah Payments Service
//
// This is the main entry point for the payment gateway service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/irandargah/irandargah-payments/config"
	"github.com/irandargah/irandargah-payments/internal/adapters/host"
	"github.com/irandargah/irandargah-payments/internal/adapters/irandargah"
	"github.com/irandargah/irandargah-payments/internal/adapters/store"
	"github.com/irandargah/irandargah-payments/internal/core/ports"
	"github.com/irandargah/irandargah-payments/internal/core/service"
	"github.com/irandargah/irandargah-payments/internal/handlers"
	"github.com/irandargah/irandargah-payments/internal/platform/txlog"
)

func main() {
	log.Println("Starting IranDargah Payments Service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	log.Printf("Configuration loaded: Port=%s, Method=%s, Sandbox=%t, Store=%s",
		cfg.Server.Port, cfg.Gateway.ConnectionMethod, cfg.Gateway.Sandbox, cfg.Store.Driver)

	validateConfig(cfg)

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	ctx := context.Background()
	orders, closeStore, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Fatalf("Store error: %v", err)
	}
	defer closeStore()

	txLogger := txlog.New(os.Stdout, true)
	retry := irandargah.RetryPolicy{MaxAttempts: cfg.Gateway.RetryAttempts, Backoff: cfg.Gateway.RetryBackoff}
	restClient := irandargah.NewRESTClient(cfg.Gateway.Timeout, retry, txLogger)
	soapClient := irandargah.NewSOAPClient(cfg.Gateway.SOAPEndpoint, cfg.Gateway.SOAPNamespace, cfg.Gateway.Timeout, retry, txLogger)
	signer := irandargah.NewCallbackSigner(cfg.Security.CallbackSecret)

	var events ports.EventPublisher = host.NopPublisher{}
	if cfg.Host.APIURL != "" {
		events = host.NewClient(cfg.Host.APIURL, cfg.Host.APIKey)
	}

	// Service Layer
	presenter := service.NewPresenter(service.URLs{
		CallbackURL:      cfg.Host.CallbackURL,
		CheckoutURL:      cfg.Host.CheckoutURL,
		OrderReceivedURL: cfg.Host.OrderReceivedURL,
	})
	dispatcher := service.NewDispatcher(restClient, soapClient, orders, presenter, cfg.Gateway.BaseURL, txLogger)
	paymentService := service.NewPaymentService(
		cfg.Gateway, // implements ports.SettingsProvider
		orders,      // implements ports.OrderRepository
		orders,      // implements ports.Cart
		events,
		signer,
		dispatcher,
		presenter,
		txLogger,
	)

	// API Layer
	handler := handlers.NewPaymentHandler(paymentService, handlers.ParseAckMode(cfg.Gateway.CallbackAck))
	router := handlers.SetupRouter(handler, handlers.RouterConfig{
		GinMode:          cfg.Server.GinMode,
		ServiceJWTSecret: cfg.Security.ServiceJWTSecret,
		CallbackRPS:      cfg.Server.CallbackRPS,
		CallbackBurst:    cfg.Server.CallbackBurst,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// validateConfig warns about settings that leave the gateway unusable or open.
func validateConfig(cfg *config.Config) {
	if cfg.Gateway.MerchantID == "" && !cfg.Gateway.Sandbox {
		log.Println("Warning: IRANDARGAH_MERCHANT_ID not set, gateway is unavailable")
	}
	if cfg.Security.ServiceJWTSecret == "" {
		log.Println("Warning: SERVICE_JWT_SECRET not set, checkout API tokens are not verified")
	}
	if cfg.Security.CallbackSecret == "" {
		log.Println("Warning: CALLBACK_SECRET not set, callback order references are not signed")
	}
	if cfg.Host.APIURL == "" {
		log.Println("Warning: HOST_API_URL not set, verified payments are not forwarded")
	}
}
