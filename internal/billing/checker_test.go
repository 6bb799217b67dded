package billing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go-netbill/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	invoices  map[int64]*models.Invoice
	customers map[int64]*models.Customer

	markErr    error
	suspendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invoices:  make(map[int64]*models.Invoice),
		customers: make(map[int64]*models.Customer),
	}
}

func (s *fakeStore) addCustomer(id int64, username string, status models.CustomerStatus) *models.Customer {
	c := &models.Customer{ID: id, Username: username, Status: status, RouterID: 1}
	s.customers[id] = c
	return c
}

func (s *fakeStore) addInvoice(id, customerID int64, status models.InvoiceStatus, due time.Time) {
	s.invoices[id] = &models.Invoice{
		ID: id, CustomerID: customerID, Status: status, DueDate: due, Amount: 150000,
	}
}

func (s *fakeStore) GetDueInvoices(now time.Time) ([]*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.Invoice
	for _, inv := range s.invoices {
		if inv.Status == models.InvoicePending && inv.DueDate.Before(now) {
			clone := *inv
			if c, ok := s.customers[inv.CustomerID]; ok {
				cc := *c
				clone.Customer = &cc
			}
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (s *fakeStore) MarkInvoiceOverdue(id int64) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[id].Status = models.InvoiceOverdue
	return nil
}

func (s *fakeStore) invoiceStatus(id int64) models.InvoiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id].Status
}

func (s *fakeStore) CountOverdueInvoices(customerID int64) (int64, error) {
	var count int64
	for _, inv := range s.invoices {
		if inv.CustomerID == customerID && inv.Status == models.InvoiceOverdue {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) GetCustomer(id int64) (*models.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, errors.New("customer not found")
	}
	clone := *c
	return &clone, nil
}

func (s *fakeStore) UpdateCustomerStatus(id int64, status models.CustomerStatus) error {
	if s.suspendErr != nil {
		return s.suspendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[id].Status = status
	return nil
}

type fakeWriter struct {
	subscribers   []models.Subscriber
	sessions      []models.ActiveSession
	updates       map[string]bool
	disconnected  []string
	updateErr     error
	sessionsErr   error
	subscriberErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{updates: make(map[string]bool)}
}

func (w *fakeWriter) GetSubscribers() ([]models.Subscriber, error) {
	return w.subscribers, w.subscriberErr
}

func (w *fakeWriter) UpdateSubscriber(id string, upd models.SubscriberUpdate) error {
	if w.updateErr != nil {
		return w.updateErr
	}
	if upd.Disabled != nil {
		w.updates[id] = *upd.Disabled
	}
	return nil
}

func (w *fakeWriter) GetActiveSessions() ([]models.ActiveSession, error) {
	return w.sessions, w.sessionsErr
}

func (w *fakeWriter) DisconnectSession(id string) error {
	w.disconnected = append(w.disconnected, id)
	return nil
}

func testChecker(store Store, writer RouterWriter) *Checker {
	factory := func(int64) (RouterWriter, error) { return writer, nil }
	if writer == nil {
		factory = func(int64) (RouterWriter, error) { return nil, errors.New("router offline") }
	}
	c := New(store, factory, nil, time.Hour, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestRunOnceMarksAndSuspends(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerActive)
	store.addInvoice(10, 1, models.InvoicePending, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))

	writer := newFakeWriter()
	writer.subscribers = []models.Subscriber{{ID: "*5", Name: "alice"}}
	writer.sessions = []models.ActiveSession{
		{ID: "*8", Name: "alice"},
		{ID: "*9", Name: "bob"},
	}

	result, err := testChecker(store, writer).RunOnce()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Marked)
	assert.Equal(t, 1, result.Suspended)
	assert.Equal(t, models.InvoiceOverdue, store.invoices[10].Status)
	assert.Equal(t, models.CustomerSuspended, store.customers[1].Status)

	assert.Equal(t, map[string]bool{"*5": true}, writer.updates)
	assert.Equal(t, []string{"*8"}, writer.disconnected, "only the customer's own session is dropped")
}

func TestRunOnceIgnoresFutureAndSettledInvoices(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerActive)
	store.addInvoice(10, 1, models.InvoicePending, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	store.addInvoice(11, 1, models.InvoicePaid, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	store.addInvoice(12, 1, models.InvoiceOverdue, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	result, err := testChecker(store, newFakeWriter()).RunOnce()
	require.NoError(t, err)

	assert.Zero(t, result.Marked)
	assert.Zero(t, result.Suspended)
	assert.Equal(t, models.CustomerActive, store.customers[1].Status)
}

func TestRunOnceSuspendsCustomerOnceForManyInvoices(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerActive)
	past := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.addInvoice(10, 1, models.InvoicePending, past)
	store.addInvoice(11, 1, models.InvoicePending, past)

	result, err := testChecker(store, newFakeWriter()).RunOnce()
	require.NoError(t, err)

	assert.Equal(t, 2, result.Marked)
	assert.Equal(t, 1, result.Suspended)
}

func TestRunOnceSkipsAlreadySuspendedCustomer(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerSuspended)
	store.addInvoice(10, 1, models.InvoicePending, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	result, err := testChecker(store, newFakeWriter()).RunOnce()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Marked)
	assert.Zero(t, result.Suspended)
}

func TestRunOnceSurvivesDeviceFailure(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerActive)
	store.addInvoice(10, 1, models.InvoicePending, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	writer := newFakeWriter()
	writer.subscribers = []models.Subscriber{{ID: "*5", Name: "alice"}}
	writer.updateErr = errors.New("i/o timeout")
	writer.sessionsErr = errors.New("i/o timeout")

	result, err := testChecker(store, writer).RunOnce()
	require.NoError(t, err)

	// DB state is authoritative and does not roll back.
	assert.Equal(t, 1, result.Suspended)
	assert.Equal(t, models.CustomerSuspended, store.customers[1].Status)
	assert.Equal(t, models.InvoiceOverdue, store.invoices[10].Status)
}

func TestRunOnceSurvivesMissingRouterClient(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerActive)
	store.addInvoice(10, 1, models.InvoicePending, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	result, err := testChecker(store, nil).RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Suspended)
}

func TestReactivateIfClear(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerSuspended)
	store.addInvoice(10, 1, models.InvoicePaid, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	writer := newFakeWriter()
	writer.subscribers = []models.Subscriber{{ID: "*5", Name: "alice", Disabled: true}}

	reactivated, err := testChecker(store, writer).ReactivateIfClear(1)
	require.NoError(t, err)

	assert.True(t, reactivated)
	assert.Equal(t, models.CustomerActive, store.customers[1].Status)
	assert.Equal(t, map[string]bool{"*5": false}, writer.updates, "secret re-enabled on device")
}

func TestReactivateIfClearKeepsSuspensionWhileOverdueRemain(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerSuspended)
	store.addInvoice(10, 1, models.InvoiceOverdue, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	reactivated, err := testChecker(store, newFakeWriter()).ReactivateIfClear(1)
	require.NoError(t, err)

	assert.False(t, reactivated)
	assert.Equal(t, models.CustomerSuspended, store.customers[1].Status)
}

func TestReactivateIfClearIgnoresActiveCustomer(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerActive)

	reactivated, err := testChecker(store, newFakeWriter()).ReactivateIfClear(1)
	require.NoError(t, err)
	assert.False(t, reactivated)
}

func TestStartStopRunsSweepImmediately(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(1, "alice", models.CustomerActive)
	store.addInvoice(10, 1, models.InvoicePending, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	checker := testChecker(store, newFakeWriter())
	checker.Start()

	require.Eventually(t, func() bool {
		return store.invoiceStatus(10) == models.InvoiceOverdue
	}, time.Second, 5*time.Millisecond)

	checker.Stop()
}
