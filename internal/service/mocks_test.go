package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/notify"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
)

// The services own BeginTx/Commit while the in-memory repos below ignore the
// tx handle, so tests only need a driver whose transactions commit cleanly.
type stubDriver struct{}
type stubConn struct{}
type stubTx struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

var (
	stubOnce sync.Once
	stubDB   *sql.DB
)

func testDB() *sql.DB {
	stubOnce.Do(func() {
		sql.Register("service-stub", stubDriver{})
		db, err := sql.Open("service-stub", "")
		if err != nil {
			panic(err)
		}
		stubDB = db
	})
	return stubDB
}

// memOrderRepo is an in-memory OrderRepo keyed by order_id.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	createErr error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.Order)}
}

func (m *memOrderRepo) Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.orders[order.OrderID]; exists {
		return errors.New("duplicate order_id")
	}
	for _, o := range m.orders {
		if o.ExternalSessionID == order.ExternalSessionID {
			return errors.New("duplicate external_session_id")
		}
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *memOrderRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) MarkPaid(ctx context.Context, tx *sql.Tx, orderID string, total decimal.Decimal, cust domain.Customer, addr *domain.Address, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil
	}
	o.Status = domain.OrderPaid
	o.Total = &total
	o.Customer = cust
	o.ShippingAddress = addr
	o.UpdatedAt = now
	return nil
}

func (m *memOrderRepo) MarkFailedFromPending(ctx context.Context, tx *sql.Tx, orderID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != domain.OrderPending {
		return false, nil
	}
	o.Status = domain.OrderFailed
	o.UpdatedAt = now
	return true, nil
}

func (m *memOrderRepo) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	o.Status = status
	o.UpdatedAt = now
	return true, nil
}

func (m *memOrderRepo) List(ctx context.Context, filter repo.OrderFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if filter.Status != "" && string(o.Status) != filter.Status {
			continue
		}
		if filter.Email != "" && o.Customer.Email != filter.Email {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *memOrderRepo) FindStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderPending && o.UpdatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	return out, nil
}

// memPaymentRepo emulates the external_payment_ref unique constraint with
// conflict-as-no-op, mirroring the postgres implementation.
type memPaymentRepo struct {
	mu       sync.Mutex
	payments []domain.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{}
}

func (m *memPaymentRepo) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.ExternalPaymentRef == p.ExternalPaymentRef {
			return false, nil
		}
	}
	m.payments = append(m.payments, *p)
	return true, nil
}

func (m *memPaymentRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.payments) - 1; i >= 0; i-- {
		if m.payments[i].OrderID == orderID {
			cp := m.payments[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPaymentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

// fakeGateway records the params of every call so tests can assert on what
// the checkout service sent to the processor.
type fakeGateway struct {
	mu sync.Mutex

	lastSessionParams *payment.SessionParams
	lastCouponParams  *payment.CouponParams
	sessions          map[string]*payment.Session

	sessionErr  error
	couponErr   error
	retrieveErr error

	nextSessionID string
	couponCount   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]*payment.Session)}
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, params payment.SessionParams) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	f.lastSessionParams = &params
	id := f.nextSessionID
	if id == "" {
		id = "cs_test_1"
	}
	sess := &payment.Session{
		ID:            id,
		PaymentStatus: "unpaid",
		Metadata:      params.Metadata,
	}
	f.sessions[id] = sess
	return sess, nil
}

func (f *fakeGateway) CreateCoupon(ctx context.Context, params payment.CouponParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.couponErr != nil {
		return "", f.couponErr
	}
	f.lastCouponParams = &params
	f.couponCount++
	return "coup_test_1", nil
}

func (f *fakeGateway) RetrieveSession(ctx context.Context, sessionID string, expand ...string) (*payment.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such session")
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeGateway) setSession(sess *payment.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
}

// recordingNotifier captures published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.OrderEvent
}

func (r *recordingNotifier) Publish(ctx context.Context, event notify.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }
