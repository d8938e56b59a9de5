package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
)

func testCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Currency:              "pkr",
		FreeShippingThreshold: 250000, // Rs 2500
		ShippingFee:           35000,  // Rs 350
		ShipCountries:         []string{"PK"},
	}
}

func newCheckoutFixture() (*checkoutService, *memOrderRepo, *fakeGateway) {
	orders := newMemOrderRepo()
	gw := newFakeGateway()
	svc := NewCheckoutService(testDB(), orders, gw, testCheckoutConfig(), zap.NewNop()).(*checkoutService)
	return svc, orders, gw
}

func validRequest(items ...domain.OrderItem) CheckoutRequest {
	return CheckoutRequest{
		Items:         items,
		CustomerEmail: "shopper@example.com",
		SuccessURL:    "https://aeglekart.example/success",
		CancelURL:     "https://aeglekart.example/cancel",
	}
}

func TestCreateSession_CoughSyrupScenario(t *testing.T) {
	svc, orders, gw := newCheckoutFixture()

	// One item at Rs 160.00, well below the free-shipping threshold.
	result, err := svc.CreateSession(context.Background(),
		validRequest(domain.OrderItem{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1}))
	require.NoError(t, err)
	require.NotEmpty(t, result.OrderID)
	assert.Equal(t, "cs_test_1", result.SessionID)

	order, err := orders.FindByOrderID(context.Background(), result.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("160.00")),
		"subtotal = %s", order.Subtotal)
	assert.True(t, order.ShippingFee.Equal(decimal.RequireFromString("350.00")),
		"shipping fee = %s", order.ShippingFee)
	assert.Nil(t, order.Total)

	// Flat fee injected into the session's shipping options.
	require.Len(t, gw.lastSessionParams.ShippingOptions, 1)
	assert.Equal(t, int64(35000), gw.lastSessionParams.ShippingOptions[0].Amount)

	assert.Equal(t, result.OrderID, gw.lastSessionParams.Metadata["order_id"])
	assert.Equal(t, "shopper@example.com", gw.lastSessionParams.CustomerEmail)
}

func TestCreateSession_SubtotalExcludesFeeLines(t *testing.T) {
	svc, orders, _ := newCheckoutFixture()

	result, err := svc.CreateSession(context.Background(), validRequest(
		domain.OrderItem{Name: "Paracetamol", UnitAmount: 50000, Quantity: 2},
		domain.OrderItem{Name: "Shipping", UnitAmount: 35000, Quantity: 1},
		domain.OrderItem{Name: "Estimated Tax", UnitAmount: 8000, Quantity: 1},
	))
	require.NoError(t, err)

	order, _ := orders.FindByOrderID(context.Background(), result.OrderID)
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("1000.00")),
		"subtotal = %s", order.Subtotal)

	// The persisted item list drops the synthetic fee lines too.
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Paracetamol", order.Items[0].Name)
}

func TestCreateSession_FreeShippingAboveThreshold(t *testing.T) {
	svc, orders, gw := newCheckoutFixture()

	result, err := svc.CreateSession(context.Background(),
		validRequest(domain.OrderItem{Name: "Glucometer", UnitAmount: 300000, Quantity: 1}))
	require.NoError(t, err)

	require.Len(t, gw.lastSessionParams.ShippingOptions, 1)
	assert.Equal(t, int64(0), gw.lastSessionParams.ShippingOptions[0].Amount)

	order, _ := orders.FindByOrderID(context.Background(), result.OrderID)
	assert.True(t, order.ShippingFee.IsZero())
}

func TestCreateSession_CallerSuppliedShippingLineSkipsInjection(t *testing.T) {
	svc, _, gw := newCheckoutFixture()

	_, err := svc.CreateSession(context.Background(), validRequest(
		domain.OrderItem{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1},
		domain.OrderItem{Name: "Shipping", UnitAmount: 20000, Quantity: 1},
	))
	require.NoError(t, err)
	assert.Empty(t, gw.lastSessionParams.ShippingOptions)
}

func TestCreateSession_ForcesStoreCurrency(t *testing.T) {
	svc, _, gw := newCheckoutFixture()

	_, err := svc.CreateSession(context.Background(),
		validRequest(domain.OrderItem{Name: "Insulin Pen", UnitAmount: 120000, Quantity: 2}))
	require.NoError(t, err)

	for _, li := range gw.lastSessionParams.LineItems {
		assert.Equal(t, "pkr", li.Currency)
	}
}

func TestCreateSession_DiscountCreatesCoupon(t *testing.T) {
	svc, orders, gw := newCheckoutFixture()

	req := validRequest(domain.OrderItem{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1})
	req.Discount = &domain.Discount{Code: "SAVE10", Kind: domain.DiscountPercent, Value: 10}

	result, err := svc.CreateSession(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.couponCount)
	assert.Equal(t, "percent", gw.lastCouponParams.Kind)
	assert.Equal(t, "coup_test_1", gw.lastSessionParams.CouponID)

	order, _ := orders.FindByOrderID(context.Background(), result.OrderID)
	require.NotNil(t, order.Discount)
	assert.Equal(t, "SAVE10", order.Discount.Code)
}

func TestCreateSession_CouponFailureIsNonFatal(t *testing.T) {
	svc, orders, gw := newCheckoutFixture()
	gw.couponErr = errors.New("coupon api down")

	req := validRequest(domain.OrderItem{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1})
	req.Discount = &domain.Discount{Code: "SAVE10", Kind: domain.DiscountPercent, Value: 10}

	result, err := svc.CreateSession(context.Background(), req)
	require.NoError(t, err, "checkout must proceed without the discount")

	assert.Empty(t, gw.lastSessionParams.CouponID)
	order, _ := orders.FindByOrderID(context.Background(), result.OrderID)
	assert.Nil(t, order.Discount, "dropped discount is not recorded on the order")
}

func TestCreateSession_GatewayFailureLeavesNoOrder(t *testing.T) {
	svc, orders, gw := newCheckoutFixture()
	gw.sessionErr = errors.New("gateway unavailable")

	_, err := svc.CreateSession(context.Background(),
		validRequest(domain.OrderItem{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1}))
	require.ErrorIs(t, err, ErrCheckoutFailed)

	all, _ := orders.List(context.Background(), repo.OrderFilter{})
	assert.Empty(t, all)
}

func TestCreateSession_PersistFailureSurfacesGenericError(t *testing.T) {
	svc, orders, _ := newCheckoutFixture()
	orders.createErr = errors.New("connection reset")

	_, err := svc.CreateSession(context.Background(),
		validRequest(domain.OrderItem{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1}))
	require.ErrorIs(t, err, ErrCheckoutFailed)
}

func TestCreateSession_Validation(t *testing.T) {
	svc, _, _ := newCheckoutFixture()

	cases := []struct {
		name string
		req  CheckoutRequest
	}{
		{"empty cart", validRequest()},
		{"zero quantity", validRequest(domain.OrderItem{Name: "Syrup", UnitAmount: 100, Quantity: 0})},
		{"unnamed item", validRequest(domain.OrderItem{UnitAmount: 100, Quantity: 1})},
		{"missing email", func() CheckoutRequest {
			r := validRequest(domain.OrderItem{Name: "Syrup", UnitAmount: 100, Quantity: 1})
			r.CustomerEmail = ""
			return r
		}()},
		{"missing urls", func() CheckoutRequest {
			r := validRequest(domain.OrderItem{Name: "Syrup", UnitAmount: 100, Quantity: 1})
			r.SuccessURL = ""
			return r
		}()},
		{"bad discount kind", func() CheckoutRequest {
			r := validRequest(domain.OrderItem{Name: "Syrup", UnitAmount: 100, Quantity: 1})
			r.Discount = &domain.Discount{Code: "X", Kind: "bogus"}
			return r
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSession(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}
