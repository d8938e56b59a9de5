package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/config"
	"github.com/shamtarani05/aeglekart-orders/internal/database"
	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/metrics"
	"github.com/shamtarani05/aeglekart-orders/internal/notify"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
	"github.com/shamtarani05/aeglekart-orders/internal/service"
	"github.com/shamtarani05/aeglekart-orders/internal/worker"
)

// Drives the full checkout -> settle/fail -> reconcile loop against a real
// database with the mock gateway standing in for the processor. Useful for
// eyeballing the order state machine locally.
func main() {
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.NewPostgres(cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal(err)
	}
	metrics.Register()

	orderRepo := repo.NewOrderRepo(db)
	paymentRepo := repo.NewPaymentRepo(db)
	gateway := payment.NewMockGateway()

	checkoutSvc := service.NewCheckoutService(db, orderRepo, gateway, service.CheckoutConfig{
		Currency:              cfg.Currency,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
		ShipCountries:         []string{"PK"},
	}, logger)
	webhookSvc := service.NewWebhookService(db, orderRepo, paymentRepo, gateway, notify.Noop{}, logger)

	fmt.Println("--- STARTING SIMULATION (20 ORDERS) ---")
	for i := 0; i < 20; i++ {
		result, err := checkoutSvc.CreateSession(ctx, service.CheckoutRequest{
			Items: []domain.OrderItem{
				{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1 + rand.IntN(3)},
				{Name: "Vitamin C 500mg", UnitAmount: 45000, Quantity: 1},
			},
			CustomerEmail: fmt.Sprintf("shopper%d@example.com", i),
			SuccessURL:    "https://aeglekart.example/success",
			CancelURL:     "https://aeglekart.example/cancel",
		})
		if err != nil {
			log.Printf("checkout failed: %v", err)
			continue
		}

		fmt.Printf("[%d] Order %s session %s ... ", i+1, result.OrderID, result.SessionID)

		// Roughly: 70% settle, 20% fail, 10% stay stuck for the sweeper.
		chance := rand.IntN(100)
		switch {
		case chance < 70:
			sess, _ := gateway.RetrieveSession(ctx, result.SessionID)
			gateway.CompleteSession(result.SessionID, sess.AmountTotal,
				&payment.CustomerDetails{Email: fmt.Sprintf("shopper%d@example.com", i), Name: "Sim Shopper"},
				&payment.ShippingDetails{Address: &payment.SessionAddress{City: "Karachi", Country: "PK"}},
				&payment.PaymentIntent{ID: "pi_sim_" + result.OrderID, Amount: sess.AmountTotal, Status: "succeeded"},
			)
			full, _ := gateway.RetrieveSession(ctx, result.SessionID)
			order, _ := orderRepo.FindByOrderID(ctx, result.OrderID)
			if err := webhookSvc.SettleFromSession(ctx, order, full); err != nil {
				fmt.Printf("SETTLE FAILED: %v\n", err)
				continue
			}
			fmt.Println("PAID")
		case chance < 90:
			evt := failedEvent(result.OrderID)
			if err := webhookSvc.HandleEvent(ctx, evt); err != nil {
				fmt.Printf("FAIL EVENT ERROR: %v\n", err)
				continue
			}
			fmt.Println("FAILED")
		default:
			fmt.Println("STUCK (left pending)")
		}

		fresh, _ := orderRepo.FindByOrderID(ctx, result.OrderID)
		fmt.Printf("    -> DB Status: %s\n", fresh.Status)
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("--- RUNNING RECONCILIATION SWEEP ---")
	runSweep(ctx, db, orderRepo, gateway, webhookSvc, logger)
}

func failedEvent(orderID string) *payment.Event {
	evt := &payment.Event{
		ID:   "evt_sim_" + orderID,
		Type: payment.EventPaymentFailed,
	}
	evt.Data.Object = []byte(fmt.Sprintf(
		`{"id":"pi_sim_%s","metadata":{"order_id":"%s"},"last_payment_error":{"message":"card declined"}}`,
		orderID, orderID,
	))
	return evt
}

func runSweep(ctx context.Context, db *sql.DB, orderRepo repo.OrderRepo, gateway payment.Gateway, webhookSvc service.WebhookService, logger *zap.Logger) {
	sweeper := worker.NewReconciliationWorker(db, orderRepo, gateway, webhookSvc, 0, 1*time.Second, logger)
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	sweeper.Run(sweepCtx)
}
