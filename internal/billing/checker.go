// Package billing runs the overdue sweep: flags past-due invoices, suspends
// the owing customers, and best-effort mirrors the suspension onto the
// router. The database is authoritative; device failures are logged, never
// rolled back.
package billing

import (
	"sync"
	"time"

	"go-netbill/internal/models"

	"github.com/rs/zerolog"
)

// Store is the slice of the database layer the checker needs.
type Store interface {
	GetDueInvoices(now time.Time) ([]*models.Invoice, error)
	MarkInvoiceOverdue(id int64) error
	CountOverdueInvoices(customerID int64) (int64, error)
	GetCustomer(id int64) (*models.Customer, error)
	UpdateCustomerStatus(id int64, status models.CustomerStatus) error
}

// RouterWriter is the slice of the protocol adapter used to mirror account
// state onto the device.
type RouterWriter interface {
	GetSubscribers() ([]models.Subscriber, error)
	UpdateSubscriber(id string, upd models.SubscriberUpdate) error
	GetActiveSessions() ([]models.ActiveSession, error)
	DisconnectSession(id string) error
}

// ClientFactory yields a router client for a stored router ID.
type ClientFactory func(routerID int64) (RouterWriter, error)

// Notifier delivers overdue notices. All delivery is best-effort.
type Notifier interface {
	NotifyOverdue(customer *models.Customer, invoice *models.Invoice)
	NotifySweepDone(result SweepResult)
}

// SweepResult summarizes one overdue sweep.
type SweepResult struct {
	Marked    int `json:"markedCount"`
	Suspended int `json:"suspendedCount"`
}

// Checker periodically sweeps for past-due invoices.
type Checker struct {
	store    Store
	clients  ClientFactory
	notifier Notifier
	log      zerolog.Logger
	interval time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a checker. notifier may be nil.
func New(store Store, clients ClientFactory, notifier Notifier, interval time.Duration, log zerolog.Logger) *Checker {
	return &Checker{
		store:    store,
		clients:  clients,
		notifier: notifier,
		log:      log.With().Str("component", "billing").Logger(),
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic sweep. The first pass runs immediately so a
// restart does not wait a full interval to catch up.
func (c *Checker) Start() {
	go func() {
		defer close(c.done)

		if _, err := c.RunOnce(); err != nil {
			c.log.Error().Err(err).Msg("overdue sweep failed")
		}

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := c.RunOnce(); err != nil {
					c.log.Error().Err(err).Msg("overdue sweep failed")
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the periodic sweep and waits for an in-flight pass to finish.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// RunOnce executes a single sweep: every PENDING invoice past its due date
// becomes OVERDUE, and each affected ACTIVE customer is suspended.
func (c *Checker) RunOnce() (SweepResult, error) {
	var result SweepResult

	invoices, err := c.store.GetDueInvoices(c.now())
	if err != nil {
		return result, err
	}

	suspended := make(map[int64]bool)
	for _, invoice := range invoices {
		if err := c.store.MarkInvoiceOverdue(invoice.ID); err != nil {
			c.log.Error().Err(err).Int64("invoice_id", invoice.ID).Msg("failed to mark invoice overdue")
			continue
		}
		result.Marked++

		customer := invoice.Customer
		if customer == nil {
			continue
		}

		if customer.Status == models.CustomerActive && !suspended[customer.ID] {
			if err := c.store.UpdateCustomerStatus(customer.ID, models.CustomerSuspended); err != nil {
				c.log.Error().Err(err).Int64("customer_id", customer.ID).Msg("failed to suspend customer")
				continue
			}
			suspended[customer.ID] = true
			result.Suspended++

			c.log.Info().
				Int64("customer_id", customer.ID).
				Str("username", customer.Username).
				Msg("customer suspended for overdue invoice")

			c.enforceOnDevice(customer)
		}

		if c.notifier != nil {
			c.notifier.NotifyOverdue(customer, invoice)
		}
	}

	if c.notifier != nil && result.Marked > 0 {
		c.notifier.NotifySweepDone(result)
	}
	return result, nil
}

// ReactivateIfClear lifts a suspension once the customer has no remaining
// OVERDUE invoices. Returns whether a reactivation happened.
func (c *Checker) ReactivateIfClear(customerID int64) (bool, error) {
	count, err := c.store.CountOverdueInvoices(customerID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	customer, err := c.store.GetCustomer(customerID)
	if err != nil {
		return false, err
	}
	if customer.Status != models.CustomerSuspended {
		return false, nil
	}

	if err := c.store.UpdateCustomerStatus(customerID, models.CustomerActive); err != nil {
		return false, err
	}
	c.log.Info().
		Int64("customer_id", customerID).
		Str("username", customer.Username).
		Msg("customer reactivated, no overdue invoices remain")

	c.setSecretDisabled(customer, false)
	return true, nil
}

// enforceOnDevice disables the customer's PPPoE secret and drops any live
// session. Failures are logged only; the stored status already changed.
func (c *Checker) enforceOnDevice(customer *models.Customer) {
	client := c.clientFor(customer)
	if client == nil {
		return
	}

	c.setDisabled(client, customer, true)
	c.disconnectSessions(client, customer)
}

func (c *Checker) setSecretDisabled(customer *models.Customer, disabled bool) {
	client := c.clientFor(customer)
	if client == nil {
		return
	}
	c.setDisabled(client, customer, disabled)
}

func (c *Checker) clientFor(customer *models.Customer) RouterWriter {
	if c.clients == nil {
		return nil
	}
	client, err := c.clients(customer.RouterID)
	if err != nil {
		c.log.Warn().Err(err).Int64("router_id", customer.RouterID).Msg("no router client for enforcement")
		return nil
	}
	return client
}

func (c *Checker) setDisabled(client RouterWriter, customer *models.Customer, disabled bool) {
	id, err := c.secretID(client, customer.Username)
	if err != nil {
		c.log.Warn().Err(err).Str("username", customer.Username).Msg("could not look up secret on device")
		return
	}
	if id == "" {
		return
	}
	if err := client.UpdateSubscriber(id, models.SubscriberUpdate{Disabled: &disabled}); err != nil {
		c.log.Warn().Err(err).Str("username", customer.Username).Bool("disabled", disabled).
			Msg("device state unchanged, secret update failed")
	}
}

func (c *Checker) disconnectSessions(client RouterWriter, customer *models.Customer) {
	sessions, err := client.GetActiveSessions()
	if err != nil {
		c.log.Warn().Err(err).Str("username", customer.Username).Msg("could not list active sessions")
		return
	}
	for _, session := range sessions {
		if session.Name != customer.Username {
			continue
		}
		if err := client.DisconnectSession(session.ID); err != nil {
			c.log.Warn().Err(err).Str("session_id", session.ID).Msg("session disconnect failed")
		}
	}
}

func (c *Checker) secretID(client RouterWriter, username string) (string, error) {
	subscribers, err := client.GetSubscribers()
	if err != nil {
		return "", err
	}
	for _, sub := range subscribers {
		if sub.Name == username {
			return sub.ID, nil
		}
	}
	return "", nil
}
