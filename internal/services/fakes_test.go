package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
	"fieldpay/internal/models/db_models"
	mem "fieldpay/pkg/memcache"
)

// memStore backs the repository fakes. Uniqueness rules mirror the database
// constraints the gorm repositories rely on.
type memStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*db_models.Invoice
	accounts map[uuid.UUID]*db_models.Account
	payments []*db_models.Payment
	methods  []*db_models.PaymentMethod
	logs     []*db_models.CommunicationLog
	events   map[string]*db_models.WebhookEvent
}

func newMemStore() *memStore {
	return &memStore{
		invoices: map[uuid.UUID]*db_models.Invoice{},
		accounts: map[uuid.UUID]*db_models.Account{},
		events:   map[string]*db_models.WebhookEvent{},
	}
}

func ensureID(b *db_models.BaseModel) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().Unix()
	b.CreatedAt, b.UpdatedAt = now, now
}

func (s *memStore) addAccount(tenantID uuid.UUID, name, email string) *db_models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &db_models.Account{TenantID: tenantID, Name: name, Email: email}
	ensureID(&a.BaseModel)
	s.accounts[a.ID] = a
	return a
}

func (s *memStore) addInvoice(tenantID, accountID uuid.UUID, number, total string, status db_models.InvoiceStatus) *db_models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := decimal.RequireFromString(total)
	inv := &db_models.Invoice{
		TenantID:      tenantID,
		AccountID:     accountID,
		InvoiceNumber: number,
		Status:        status,
		Subtotal:      amount,
		TaxAmount:     decimal.Zero,
		TotalAmount:   amount,
		Currency:      "usd",
		IssueDate:     time.Now().AddDate(0, 0, -10),
		DueDate:       time.Now().AddDate(0, 0, 20),
	}
	ensureID(&inv.BaseModel)
	s.invoices[inv.ID] = inv
	return inv
}

func (s *memStore) invoice(id uuid.UUID) db_models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.invoices[id]
}

func (s *memStore) paymentsFor(invoiceID uuid.UUID) []db_models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db_models.Payment
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out
}

func (s *memStore) logsOf(category db_models.CommunicationCategory) []db_models.CommunicationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db_models.CommunicationLog
	for _, l := range s.logs {
		if l.Category == category {
			out = append(out, *l)
		}
	}
	return out
}

// ------------------- invoices -------------------

type fakeInvoices struct{ s *memStore }

func (f fakeInvoices) FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.Invoice, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	inv, ok := f.s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (f fakeInvoices) MarkPaid(ctx context.Context, tenantID, id uuid.UUID, paidAt time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	inv, ok := f.s.invoices[id]
	if !ok || inv.TenantID != tenantID || inv.Status == db_models.InvoiceStatusPaid {
		return false, nil
	}
	inv.Status = db_models.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	return true, nil
}

// ------------------- payments -------------------

type fakePayments struct{ s *memStore }

func (f fakePayments) FindByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*db_models.Payment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.findLocked(tenantID, reference), nil
}

func (f fakePayments) findLocked(tenantID uuid.UUID, reference string) *db_models.Payment {
	for _, p := range f.s.payments {
		if p.TenantID == tenantID && p.ReferenceNumber != nil && *p.ReferenceNumber == reference {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (f fakePayments) CreateIfAbsent(ctx context.Context, payment *db_models.Payment) (*db_models.Payment, bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if payment.ReferenceNumber != nil {
		if existing := f.findLocked(payment.TenantID, *payment.ReferenceNumber); existing != nil {
			return existing, false, nil
		}
	}
	ensureID(&payment.BaseModel)
	cp := *payment
	f.s.payments = append(f.s.payments, &cp)
	return payment, true, nil
}

func (f fakePayments) SumByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	total := decimal.Zero
	for _, p := range f.s.payments {
		if p.TenantID == tenantID && p.InvoiceID == invoiceID {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (f fakePayments) ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.Payment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []db_models.Payment
	for _, p := range f.s.payments {
		if p.TenantID == tenantID && p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ------------------- payment methods -------------------

type fakeMethods struct{ s *memStore }

func (f fakeMethods) FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.PaymentMethod, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, m := range f.s.methods {
		if m.TenantID == tenantID && m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (f fakeMethods) FindGateway(ctx context.Context, tenantID, accountID uuid.UUID, methodType db_models.PaymentMethodType) (*db_models.PaymentMethod, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.gatewayLocked(tenantID, accountID, methodType), nil
}

func (f fakeMethods) gatewayLocked(tenantID, accountID uuid.UUID, methodType db_models.PaymentMethodType) *db_models.PaymentMethod {
	for _, m := range f.s.methods {
		if m.TenantID == tenantID && m.AccountID == accountID && m.Type == methodType && m.IsGateway {
			cp := *m
			return &cp
		}
	}
	return nil
}

func (f fakeMethods) CreateGateway(ctx context.Context, method *db_models.PaymentMethod) (*db_models.PaymentMethod, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if existing := f.gatewayLocked(method.TenantID, method.AccountID, method.Type); existing != nil {
		return existing, nil
	}
	method.IsGateway = true
	ensureID(&method.BaseModel)
	cp := *method
	f.s.methods = append(f.s.methods, &cp)
	return method, nil
}

func (f fakeMethods) SetDefault(ctx context.Context, tenantID, accountID, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var target *db_models.PaymentMethod
	for _, m := range f.s.methods {
		if m.TenantID == tenantID && m.AccountID == accountID && m.ID == id {
			target = m
		}
	}
	if target == nil {
		return gorm.ErrRecordNotFound
	}
	for _, m := range f.s.methods {
		if m.TenantID == tenantID && m.AccountID == accountID {
			m.IsDefault = false
		}
	}
	target.IsDefault = true
	return nil
}

// ------------------- accounts -------------------

type fakeAccounts struct{ s *memStore }

func (f fakeAccounts) FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a, ok := f.s.accounts[id]
	if !ok || a.TenantID != tenantID {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f fakeAccounts) SetGatewayCustomerID(ctx context.Context, tenantID, id uuid.UUID, customerID string) (string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	a, ok := f.s.accounts[id]
	if !ok || a.TenantID != tenantID {
		return "", gorm.ErrRecordNotFound
	}
	if !a.HasGatewayCustomer() {
		a.GatewayCustomerID = &customerID
	}
	return *a.GatewayCustomerID, nil
}

// ------------------- communication logs -------------------

type fakeLogs struct{ s *memStore }

func (f fakeLogs) Create(ctx context.Context, entry *db_models.CommunicationLog) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	ensureID(&entry.BaseModel)
	cp := *entry
	f.s.logs = append(f.s.logs, &cp)
	return nil
}

func (f fakeLogs) ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.CommunicationLog, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []db_models.CommunicationLog
	for _, l := range f.s.logs {
		if l.TenantID == tenantID && l.InvoiceID != nil && *l.InvoiceID == invoiceID {
			out = append(out, *l)
		}
	}
	return out, nil
}

// ------------------- webhook events -------------------

type fakeEvents struct{ s *memStore }

func (f fakeEvents) Begin(ctx context.Context, event *db_models.WebhookEvent) (*db_models.WebhookEvent, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := event.Provider + ":" + event.EventID
	if existing, ok := f.s.events[key]; ok {
		cp := *existing
		existing.Attempts++
		return &cp, nil
	}
	ensureID(&event.BaseModel)
	cp := *event
	f.s.events[key] = &cp
	return nil, nil
}

func (f fakeEvents) MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	now := time.Now()
	for _, e := range f.s.events {
		if e.ID == id {
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

// ------------------- mocks -------------------

func ret[T any](args mock.Arguments, i int) T {
	v, _ := args.Get(i).(T)
	return v
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentResult, error) {
	args := m.Called(ctx, input)
	return ret[*PaymentIntentResult](args, 0), args.Error(1)
}

func (m *mockGateway) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error) {
	args := m.Called(ctx, id)
	return ret[*PaymentIntentResult](args, 0), args.Error(1)
}

func (m *mockGateway) ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error) {
	args := m.Called(ctx, id)
	return ret[*PaymentIntentResult](args, 0), args.Error(1)
}

func (m *mockGateway) CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error) {
	args := m.Called(ctx, id)
	return ret[*PaymentIntentResult](args, 0), args.Error(1)
}

func (m *mockGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, email, name, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreatePrice(ctx context.Context, input CreatePriceInput) (*PriceResult, error) {
	args := m.Called(ctx, input)
	return ret[*PriceResult](args, 0), args.Error(1)
}

func (m *mockGateway) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*SubscriptionResult, error) {
	args := m.Called(ctx, customerID, priceID, metadata)
	return ret[*SubscriptionResult](args, 0), args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, id string, immediately bool) (*SubscriptionResult, error) {
	args := m.Called(ctx, id, immediately)
	return ret[*SubscriptionResult](args, 0), args.Error(1)
}

func (m *mockGateway) GetSubscription(ctx context.Context, id string) (*SubscriptionResult, error) {
	args := m.Called(ctx, id)
	return ret[*SubscriptionResult](args, 0), args.Error(1)
}

func (m *mockGateway) VerifyWebhookSignature(payload []byte, signature string) (*GatewayEvent, error) {
	args := m.Called(payload, signature)
	return ret[*GatewayEvent](args, 0), args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, msg EmailMessage) EmailResult {
	args := m.Called(ctx, msg)
	return args.Get(0).(EmailResult)
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

// ------------------- fixture -------------------

type fixture struct {
	store    *memStore
	gateway  PaymentGateway
	mailer   *mockMailer
	sleeper  *recordingSleeper
	ledger   LedgerService
	notifier NotificationService
	payments PaymentService
	webhooks WebhookService
	tenantID uuid.UUID
}

func newFixture(gateway PaymentGateway) *fixture {
	s := newMemStore()
	mailer := &mockMailer{}
	sleeper := &recordingSleeper{}
	log := zerolog.Nop()

	ledger := NewLedgerService(fakeInvoices{s}, fakePayments{s}, fakeMethods{s}, log)
	notifier := NewNotificationService(fakeLogs{s}, fakeAccounts{s}, mailer, "FieldPay", "https://app.example.com", log)
	locker := NewAccountLocker(nil, mem.NewLeases(), time.Second, log)
	payments := NewPaymentService(ledger, fakeAccounts{s}, gateway, notifier, locker, sleeper,
		PaymentServiceConfig{Currency: "usd", Retry: DefaultRetryPolicy()}, log)

	return &fixture{
		store:    s,
		gateway:  gateway,
		mailer:   mailer,
		sleeper:  sleeper,
		ledger:   ledger,
		notifier: notifier,
		payments: payments,
		webhooks: NewWebhookService(gateway, payments, fakeEvents{s}, log),
		tenantID: uuid.New(),
	}
}
