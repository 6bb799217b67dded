// Package syncer reconciles router PPPoE secrets into customer records.
// The pull is one-directional: device state is read, never written, so a
// pass can be repeated safely.
package syncer

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-netbill/internal/mikrotik"
	"go-netbill/internal/models"

	"github.com/rs/zerolog"
)

// ErrSyntheticData reports that the router is serving fallback data, which
// must never be written into the customer table.
var ErrSyntheticData = errors.New("router not connected, refusing to sync synthetic data")

// RouterClient is the slice of the protocol adapter the engine needs.
type RouterClient interface {
	GetSubscribers() ([]models.Subscriber, error)
	ConnectionStatus() mikrotik.ConnStatus
}

// Store is the slice of the database layer the engine needs.
type Store interface {
	GetCustomerByUsername(username string) (*models.Customer, error)
	CreateCustomer(customer *models.Customer) (*models.Customer, error)
	UpdateCustomer(customer *models.Customer) error
	UpdateRouterLastSync(id int64, at time.Time) error
}

// Engine pulls subscriber state from routers into the database.
type Engine struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a sync engine.
func New(store Store, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log.With().Str("component", "syncer").Logger(),
		now:   time.Now,
	}
}

// Sync reconciles one router's secret table into customer records. It
// refuses to run against synthetic data: a sync of mock subscribers would
// poison the customer table with fixture accounts.
func (e *Engine) Sync(router *models.RouterDevice, client RouterClient) (*models.SyncResult, error) {
	status := client.ConnectionStatus()
	if !status.Connected {
		return nil, fmt.Errorf("router %d: %w", router.ID, ErrSyntheticData)
	}

	subscribers, err := client.GetSubscribers()
	if err != nil {
		return nil, fmt.Errorf("router %d: read secrets: %w", router.ID, err)
	}

	result := &models.SyncResult{RouterID: router.ID}
	for _, sub := range subscribers {
		if sub.Name == "" {
			continue
		}

		created, updated, err := e.reconcile(router.ID, sub)
		if err != nil {
			e.log.Error().Err(err).Str("username", sub.Name).Msg("failed to reconcile subscriber")
			continue
		}
		result.Synced++
		if created {
			result.Created++
		}
		if updated {
			result.Updated++
		}
	}

	result.LastSync = e.now()
	if err := e.store.UpdateRouterLastSync(router.ID, result.LastSync); err != nil {
		return nil, fmt.Errorf("router %d: stamp last sync: %w", router.ID, err)
	}

	e.log.Info().
		Int64("router_id", router.ID).
		Int("synced", result.Synced).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Msg("sync complete")
	return result, nil
}

func (e *Engine) reconcile(routerID int64, sub models.Subscriber) (created, updated bool, err error) {
	existing, err := e.store.GetCustomerByUsername(sub.Name)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = e.store.CreateCustomer(&models.Customer{
			Username: sub.Name,
			Password: sub.Password,
			Status:   statusFor(sub.Disabled),
			RouterID: routerID,
		})
		return err == nil, false, err
	}
	if err != nil {
		return false, false, err
	}

	changed := false
	if existing.Password != sub.Password {
		existing.Password = sub.Password
		changed = true
	}
	if existing.RouterID != routerID {
		existing.RouterID = routerID
		changed = true
	}
	// DISABLED is an operator decision; the device flag does not override it.
	if existing.Status != models.CustomerDisabled {
		if want := statusFor(sub.Disabled); existing.Status != want {
			existing.Status = want
			changed = true
		}
	}

	if !changed {
		return false, false, nil
	}
	return false, true, e.store.UpdateCustomer(existing)
}

func statusFor(disabled bool) models.CustomerStatus {
	if disabled {
		return models.CustomerSuspended
	}
	return models.CustomerActive
}
