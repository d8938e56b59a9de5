package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/config"
	"github.com/shamtarani05/aeglekart-orders/internal/database"
	"github.com/shamtarani05/aeglekart-orders/internal/handler"
	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/metrics"
	"github.com/shamtarani05/aeglekart-orders/internal/middleware"
	"github.com/shamtarani05/aeglekart-orders/internal/notify"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
	"github.com/shamtarani05/aeglekart-orders/internal/service"
	"github.com/shamtarani05/aeglekart-orders/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.NewPostgres(cfg.DSN())
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	metrics.Register()

	orderRepo := repo.NewOrderRepo(db)
	paymentRepo := repo.NewPaymentRepo(db)
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayTimeout)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.KafkaBrokers != "" {
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kn.Close()
		notifier = kn
	}

	checkoutSvc := service.NewCheckoutService(db, orderRepo, gateway, service.CheckoutConfig{
		Currency:              cfg.Currency,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
		ShipCountries:         strings.Split(cfg.ShipCountries, ","),
	}, logger)
	webhookSvc := service.NewWebhookService(db, orderRepo, paymentRepo, gateway, notifier, logger)
	orderSvc := service.NewOrderService(orderRepo, paymentRepo, notifier, logger)

	checkoutHandler := handler.NewCheckoutHandler(checkoutSvc, logger)
	webhookHandler := handler.NewWebhookHandler(webhookSvc, cfg.GatewayWebhookSecret, logger)
	orderHandler := handler.NewOrderHandler(orderSvc, logger)

	verifier := middleware.NewHMACVerifier(cfg.AuthTokenSecret)
	health := database.New(db, cfg.DBDatabase)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout-session", middleware.Auth(verifier), checkoutHandler.CreateSession)
		v1.POST("/webhook", webhookHandler.Receive)
		v1.GET("/orders/verify-payment/:orderId", orderHandler.VerifyPayment)
		v1.GET("/orders/:orderId", orderHandler.GetOrder)
		v1.GET("/orders", orderHandler.ListOrders)
		v1.PUT("/orders/:orderId/status", orderHandler.UpdateStatus)
	}
	router.GET("/health", func(c *gin.Context) {
		stats := health.Health()
		code := http.StatusOK
		if stats["status"] != "up" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, stats)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.ReconcileInterval > 0 {
		sweeper := worker.NewReconciliationWorker(
			db, orderRepo, gateway, webhookSvc,
			cfg.ReconcileCutoff, cfg.ReconcileInterval, logger,
		)
		go sweeper.Run(workerCtx)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
