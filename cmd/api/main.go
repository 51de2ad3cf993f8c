package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/gateway"
	"storefront/internal/httpserver"
	"storefront/internal/notify"
	cartrepo "storefront/internal/repository/cart"
	licenserepo "storefront/internal/repository/license"
	orderrepo "storefront/internal/repository/order"
	productrepo "storefront/internal/repository/product"
	cartsvc "storefront/internal/service/cart"
	checkoutsvc "storefront/internal/service/checkout"
	licensesvc "storefront/internal/service/license"
	ordersvc "storefront/internal/service/order"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString, db.Options{
		MaxConns:        cfg.DBMaxConns,
		MaxConnIdleTime: cfg.DBConnIdleTime,
		MaxConnLifetime: cfg.DBConnMaxLifetime,
		PingTimeout:     cfg.DBPingTimeout,
	})
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	productRepo := productrepo.NewPostgres(dbpool, logger)
	cartRepo := cartrepo.NewPostgres(dbpool, logger)
	orderRepo := orderrepo.NewPostgres(dbpool, logger)
	licenseRepo := licenserepo.NewPostgres(dbpool, logger)

	gateways := gateway.NewSelector(
		gateway.NewStripe(cfg.StripeAPIBase, cfg.StripeAPIKey, cfg.GatewayTimeout, cfg.GatewayRetries, logger),
		gateway.NewPayPal(cfg.PayPalAPIBase, cfg.PayPalClientID, cfg.PayPalSecret, cfg.PublicBaseURL, cfg.GatewayTimeout, cfg.GatewayRetries, logger),
		gateway.NewMercadoPago(cfg.MercadoPagoAPIBase, cfg.MercadoPagoToken, cfg.PublicBaseURL, cfg.GatewayTimeout, cfg.GatewayRetries, logger),
	)

	cartService := cartsvc.New(cartRepo, productRepo)
	licenseService := licensesvc.New(licenseRepo, logger)
	orderService := ordersvc.New(orderRepo, gateways, licenseService, cartRepo, notify.NewLogSink(logger), logger)
	checkoutService := checkoutsvc.New(cartRepo, productRepo, orderRepo, orderService, gateways, cfg.TaxRatePercent, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Catalog:     productRepo,
		CartSvc:     cartService,
		CheckoutSvc: checkoutService,
		OrderSvc:    orderService,
		LicenseSvc:  licenseService,
		Gateways:    gateways,
		TaxRate:     cfg.TaxRatePercent,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
