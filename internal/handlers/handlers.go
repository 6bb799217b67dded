package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go-netbill/internal/billing"
	"go-netbill/internal/config"
	"go-netbill/internal/database"
	"go-netbill/internal/mailer"
	"go-netbill/internal/middleware"
	"go-netbill/internal/mikrotik"
	"go-netbill/internal/models"
	"go-netbill/internal/notification/telegram"
	"go-netbill/internal/syncer"
	"go-netbill/internal/websocket"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	DB       *database.DB
	WSHub    *websocket.Hub
	Mailer   *mailer.Mailer
	Telegram *telegram.Client
	Checker  *billing.Checker
	Syncer   *syncer.Engine
	Config   *config.Config
	log      zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB, wsHub *websocket.Hub, m *mailer.Mailer, tg *telegram.Client, checker *billing.Checker, syncEngine *syncer.Engine, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		DB:       db,
		WSHub:    wsHub,
		Mailer:   m,
		Telegram: tg,
		Checker:  checker,
		Syncer:   syncEngine,
		Config:   cfg,
		log:      log.With().Str("component", "handlers").Logger(),
	}
}

// ============== Auth Handlers ==============

// Login handles admin authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	admin, err := h.DB.GetAdminByUsername(req.Username)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := generateJWT(admin, h.Config.JWTSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user": map[string]string{
			"username": admin.Username,
		},
	})
}

// Logout handles admin logout. Tokens are stateless, so this only exists
// so the frontend has a call to make.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ============== Dashboard Handlers ==============

// GetDashboardStats returns dashboard aggregates
func (h *Handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.DB.GetDashboardStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":            stats,
		"connectedClients": h.WSHub.ClientCount(),
	})
}

// ============== Customer Handlers ==============

// GetCustomers returns customers with optional status filter and search
func (h *Handler) GetCustomers(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	search := r.URL.Query().Get("search")
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)

	customers, total, err := h.DB.GetCustomers(status, search, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get customers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// CreateCustomer creates a customer and pushes the PPPoE secret to the
// router. The database write is authoritative; a failed device write is
// reported distinctly so the operator can re-sync later.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		RouterID int64  `json:"routerId"`
		PlanID   *int64 `json:"planId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if req.RouterID == 0 {
		respondError(w, http.StatusBadRequest, "Router is required")
		return
	}

	customer, err := h.DB.CreateCustomer(&models.Customer{
		Username: req.Username,
		Password: req.Password,
		RouterID: req.RouterID,
		PlanID:   req.PlanID,
	})
	if err != nil {
		respondError(w, http.StatusConflict, "Failed to create customer (username may already exist)")
		return
	}

	h.WSHub.Broadcast("customer-update", customer)

	if err := h.pushSecret(customer); err != nil {
		h.log.Warn().Err(err).Str("username", customer.Username).Msg("customer saved locally, device write failed")
		respondJSON(w, http.StatusCreated, map[string]interface{}{
			"customer": customer,
			"warning":  fmt.Sprintf("customer saved locally, device write failed: %v", err),
		})
		return
	}

	respondJSON(w, http.StatusCreated, customer)
}

// GetCustomer returns a specific customer
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	customer, err := h.DB.GetCustomer(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}

	respondJSON(w, http.StatusOK, customer)
}

// UpdateCustomer applies a partial update and mirrors credential and
// state changes onto the router best-effort
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	customer, err := h.DB.GetCustomer(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}

	var req struct {
		Password *string                `json:"password"`
		Status   *models.CustomerStatus `json:"status"`
		RouterID *int64                 `json:"routerId"`
		PlanID   *int64                 `json:"planId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status != nil && !validCustomerStatus(*req.Status) {
		respondError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	passwordChanged := req.Password != nil && *req.Password != customer.Password
	statusChanged := req.Status != nil && *req.Status != customer.Status

	if req.Password != nil {
		customer.Password = *req.Password
	}
	if req.Status != nil {
		customer.Status = *req.Status
	}
	if req.RouterID != nil {
		customer.RouterID = *req.RouterID
	}
	if req.PlanID != nil {
		customer.PlanID = req.PlanID
	}

	if err := h.DB.UpdateCustomer(customer); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update customer")
		return
	}
	customer, err = h.DB.GetCustomer(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to reload customer")
		return
	}

	if passwordChanged || statusChanged {
		upd := models.SubscriberUpdate{}
		if passwordChanged {
			upd.Password = &customer.Password
		}
		if statusChanged {
			disabled := customer.Status != models.CustomerActive
			upd.Disabled = &disabled
		}
		if err := h.pushSecretUpdate(customer, upd); err != nil {
			h.log.Warn().Err(err).Str("username", customer.Username).Msg("customer updated locally, device write failed")
		}
	}

	h.WSHub.Broadcast("customer-update", customer)
	respondJSON(w, http.StatusOK, customer)
}

// DeleteCustomer removes a customer and best-effort removes the secret
// from the router
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	customer, err := h.DB.GetCustomer(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}

	if err := h.DB.DeleteCustomer(id); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete customer")
		return
	}

	if err := h.removeSecret(customer); err != nil {
		h.log.Warn().Err(err).Str("username", customer.Username).Msg("customer deleted locally, device cleanup failed")
	}

	h.WSHub.Broadcast("customer-update", map[string]interface{}{"id": id, "deleted": true})
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SuspendCustomer suspends a customer and disables their secret on the
// router, kicking any live session
func (h *Handler) SuspendCustomer(w http.ResponseWriter, r *http.Request) {
	h.setCustomerStatus(w, r, models.CustomerSuspended)
}

// ActivateCustomer reactivates a customer and re-enables their secret
func (h *Handler) ActivateCustomer(w http.ResponseWriter, r *http.Request) {
	h.setCustomerStatus(w, r, models.CustomerActive)
}

func (h *Handler) setCustomerStatus(w http.ResponseWriter, r *http.Request, status models.CustomerStatus) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	customer, err := h.DB.GetCustomer(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}

	if err := h.DB.UpdateCustomerStatus(id, status); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update customer status")
		return
	}
	customer.Status = status

	disabled := status != models.CustomerActive
	if err := h.pushSecretUpdate(customer, models.SubscriberUpdate{Disabled: &disabled}); err != nil {
		h.log.Warn().Err(err).Str("username", customer.Username).Msg("status saved locally, device write failed")
	}

	h.WSHub.Broadcast("customer-update", customer)
	respondJSON(w, http.StatusOK, customer)
}

// ============== Plan Handlers ==============

// GetPlans returns all plans; ?active=true limits to active ones
func (h *Handler) GetPlans(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	plans, err := h.DB.GetPlans(activeOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get plans")
		return
	}

	respondJSON(w, http.StatusOK, plans)
}

// CreatePlan creates a service plan
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var plan models.Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if plan.Name == "" || plan.Price <= 0 {
		respondError(w, http.StatusBadRequest, "Name and a positive price are required")
		return
	}
	if plan.BillingCycle == "" {
		plan.BillingCycle = models.CycleMonthly
	}

	created, err := h.DB.CreatePlan(&plan)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create plan")
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// GetPlan returns a specific plan
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid plan ID")
		return
	}

	plan, err := h.DB.GetPlan(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Plan not found")
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

// UpdatePlan updates a service plan
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid plan ID")
		return
	}

	plan, err := h.DB.GetPlan(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Plan not found")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(plan); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	plan.ID = id

	if err := h.DB.UpdatePlan(plan); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update plan")
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

// DeletePlan deletes a plan unless customers are subscribed to it
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid plan ID")
		return
	}

	if err := h.DB.DeletePlan(id); err != nil {
		if errors.Is(err, database.ErrPlanInUse) {
			respondError(w, http.StatusConflict, "Plan has subscribed customers")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to delete plan")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ============== Invoice Handlers ==============

// GetInvoices returns invoices with optional status and customer filters
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	customerID := getQueryInt64(r, "customerId")
	limit := getQueryInt(r, "limit", 50)
	offset := getQueryInt(r, "offset", 0)

	invoices, total, err := h.DB.GetInvoices(status, customerID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get invoices")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// CreateInvoice creates an invoice for a customer
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var invoice models.Invoice
	if err := json.NewDecoder(r.Body).Decode(&invoice); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if invoice.CustomerID == 0 || invoice.Amount <= 0 || invoice.DueDate.IsZero() {
		respondError(w, http.StatusBadRequest, "Customer, amount and due date are required")
		return
	}

	if _, err := h.DB.GetCustomer(invoice.CustomerID); err != nil {
		respondError(w, http.StatusBadRequest, "Customer not found")
		return
	}

	created, err := h.DB.CreateInvoice(&invoice)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create invoice")
		return
	}

	h.WSHub.Broadcast("invoice-update", created)
	respondJSON(w, http.StatusCreated, created)
}

// GenerateInvoices creates the current period's invoices on demand
func (h *Handler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	count, err := h.GenerateInvoicesInternal()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate invoices")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"generated": count,
	})
}

// GenerateInvoicesInternal creates this period's invoice for every
// plan-subscribed customer that does not have one yet. Customers the
// operator disabled are skipped. Returns the number created.
func (h *Handler) GenerateInvoicesInternal() (int, error) {
	customers, _, err := h.DB.GetCustomers("", "", 10000, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list customers: %v", err)
	}

	now := time.Now()
	count := 0
	for _, customer := range customers {
		if customer.Plan == nil || customer.Status == models.CustomerDisabled {
			continue
		}
		period, due := billingPeriod(customer.Plan.BillingCycle, now)
		if !due {
			continue
		}
		exists, err := h.DB.HasInvoiceForPeriod(customer.ID, period)
		if err != nil || exists {
			continue
		}
		invoice := &models.Invoice{
			CustomerID:  customer.ID,
			Amount:      customer.Plan.Price,
			DueDate:     now.AddDate(0, 0, 10),
			Description: fmt.Sprintf("%s %s", customer.Plan.Name, period),
		}
		created, err := h.DB.CreateInvoice(invoice)
		if err != nil {
			h.log.Error().Err(err).Int64("customer_id", customer.ID).Msg("failed to create invoice")
			continue
		}
		h.WSHub.Broadcast("invoice-update", created)
		count++
	}
	return count, nil
}

// billingPeriod returns the period tag for a cycle and whether the cycle
// bills in the given month. Quarterly plans bill in the first month of
// each quarter, yearly plans in January.
func billingPeriod(cycle models.BillingCycle, now time.Time) (string, bool) {
	switch cycle {
	case models.CycleQuarterly:
		quarter := (int(now.Month())-1)/3 + 1
		return fmt.Sprintf("%d-Q%d", now.Year(), quarter), (int(now.Month())-1)%3 == 0
	case models.CycleYearly:
		return strconv.Itoa(now.Year()), now.Month() == time.January
	default:
		return now.Format("2006-01"), true
	}
}

// GetInvoice returns a specific invoice
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	invoice, err := h.DB.GetInvoice(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Invoice not found")
		return
	}

	respondJSON(w, http.StatusOK, invoice)
}

// UpdateInvoice updates an invoice
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	invoice, err := h.DB.GetInvoice(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Invoice not found")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(invoice); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	invoice.ID = id

	if err := h.DB.UpdateInvoice(invoice); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update invoice")
		return
	}

	h.WSHub.Broadcast("invoice-update", invoice)
	respondJSON(w, http.StatusOK, invoice)
}

// DeleteInvoice deletes an invoice
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	if err := h.DB.DeleteInvoice(id); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete invoice")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PayInvoice marks an invoice paid. With reactivateCustomer set, the
// customer is reactivated when no overdue invoices remain.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	invoice, err := h.DB.GetInvoice(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Invoice not found")
		return
	}
	if invoice.Status == models.InvoicePaid {
		respondError(w, http.StatusConflict, "Invoice is already paid")
		return
	}

	var req struct {
		ReactivateCustomer bool `json:"reactivateCustomer"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	paidAt := time.Now()
	if err := h.DB.MarkInvoicePaid(id, paidAt); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to mark invoice paid")
		return
	}
	invoice.Status = models.InvoicePaid
	invoice.PaidAt = &paidAt

	reactivated := false
	if req.ReactivateCustomer {
		reactivated, err = h.Checker.ReactivateIfClear(invoice.CustomerID)
		if err != nil {
			h.log.Warn().Err(err).Int64("customer_id", invoice.CustomerID).Msg("reactivation check failed")
		}
	}

	h.WSHub.Broadcast("invoice-update", invoice)
	h.sendPaymentReceipt(invoice)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"invoice":     invoice,
		"reactivated": reactivated,
	})
}

func (h *Handler) sendPaymentReceipt(invoice *models.Invoice) {
	if h.Mailer == nil || h.Config.AdminEmail == "" {
		return
	}
	username := ""
	if invoice.Customer != nil {
		username = invoice.Customer.Username
	}
	body := mailer.GeneratePaymentReceiptHTML(username,
		fmt.Sprintf("%.2f", invoice.Amount),
		invoice.PaidAt.Format("2006-01-02 15:04"))
	if err := h.Mailer.Send(h.Config.AdminEmail, "Payment received", body); err != nil {
		h.log.Warn().Err(err).Msg("failed to send payment receipt")
	}
}

// ============== Router Handlers ==============

// GetRouters returns all registered routers
func (h *Handler) GetRouters(w http.ResponseWriter, r *http.Request) {
	routers, err := h.DB.GetRouters()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get routers")
		return
	}

	respondJSON(w, http.StatusOK, routers)
}

// CreateRouter registers a router. The API password arrives in plaintext
// and is bcrypt-hashed before it hits disk; the plaintext is used once
// here for an immediate connection test.
func (h *Handler) CreateRouter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host        string `json:"host"`
		APIUser     string `json:"apiUser"`
		APIPassword string `json:"apiPassword"`
		APIPort     int    `json:"apiPort"`
		Label       string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Host == "" || req.APIUser == "" {
		respondError(w, http.StatusBadRequest, "Host and API user are required")
		return
	}

	created, err := h.DB.CreateRouter(&models.RouterDevice{
		Host:        req.Host,
		APIUser:     req.APIUser,
		APIPassword: req.APIPassword,
		APIPort:     req.APIPort,
		Label:       req.Label,
		IsActive:    true,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create router")
		return
	}

	client := h.routerClient(created, mikrotik.WithPassword(req.APIPassword))
	defer client.Close()
	client.TestConnection()

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"router": created,
		"status": client.ConnectionStatus(),
	})
}

// GetRouter returns a specific router
func (h *Handler) GetRouter(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid router ID")
		return
	}

	router, err := h.DB.GetRouter(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Router not found")
		return
	}

	respondJSON(w, http.StatusOK, router)
}

// UpdateRouter updates a router; an empty apiPassword keeps the stored
// credential
func (h *Handler) UpdateRouter(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid router ID")
		return
	}

	router, err := h.DB.GetRouter(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Router not found")
		return
	}

	var req struct {
		Host        *string `json:"host"`
		APIUser     *string `json:"apiUser"`
		APIPassword string  `json:"apiPassword"`
		APIPort     *int    `json:"apiPort"`
		Label       *string `json:"label"`
		IsActive    *bool   `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Host != nil {
		router.Host = *req.Host
	}
	if req.APIUser != nil {
		router.APIUser = *req.APIUser
	}
	if req.APIPort != nil {
		router.APIPort = *req.APIPort
	}
	if req.Label != nil {
		router.Label = *req.Label
	}
	if req.IsActive != nil {
		router.IsActive = *req.IsActive
	}
	router.APIPassword = req.APIPassword

	if err := h.DB.UpdateRouter(router); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update router")
		return
	}

	router, err = h.DB.GetRouter(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to reload router")
		return
	}
	respondJSON(w, http.StatusOK, router)
}

// DeleteRouter removes a router and its customers
func (h *Handler) DeleteRouter(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid router ID")
		return
	}

	if err := h.DB.DeleteRouter(id); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete router")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetRouterStatus reports the tri-state connection status of one router
func (h *Handler) GetRouterStatus(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid router ID")
		return
	}

	router, err := h.DB.GetRouter(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Router not found")
		return
	}

	client := h.routerClient(router)
	defer client.Close()
	client.TestConnection()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"routerId": router.ID,
		"status":   client.ConnectionStatus(),
		"source":   client.LastSource(),
	})
}

// SyncRouter reconciles a router's secret table into the customer records
func (h *Handler) SyncRouter(w http.ResponseWriter, r *http.Request) {
	id := getPathInt64(r, "id")
	if id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid router ID")
		return
	}

	router, err := h.DB.GetRouter(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Router not found")
		return
	}

	client := h.routerClient(router)
	defer client.Close()

	result, err := h.Syncer.Sync(router, client)
	if err != nil {
		if errors.Is(err, syncer.ErrSyntheticData) {
			respondError(w, http.StatusConflict, "Router is not connected; refusing to sync fallback data")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Sync failed: %v", err))
		return
	}

	h.WSHub.Broadcast("sync-complete", result)
	if h.Telegram != nil {
		if err := h.Telegram.SendSyncAlert(routerLabel(router), result.Synced, result.Created, result.Updated); err != nil {
			h.log.Debug().Err(err).Msg("telegram sync alert not sent")
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// AutoSync reconciles every active router in turn. Routers serving
// synthetic data are skipped quietly; other failures raise an ops alert.
func (h *Handler) AutoSync() {
	routers, err := h.DB.GetRouters()
	if err != nil {
		h.log.Error().Err(err).Msg("auto-sync: failed to list routers")
		return
	}

	for _, router := range routers {
		if !router.IsActive {
			continue
		}
		client := h.routerClient(router)
		result, err := h.Syncer.Sync(router, client)
		client.Close()
		if err != nil {
			if errors.Is(err, syncer.ErrSyntheticData) {
				h.log.Debug().Int64("router_id", router.ID).Msg("auto-sync skipped, router not connected")
				continue
			}
			h.log.Error().Err(err).Int64("router_id", router.ID).Msg("auto-sync failed")
			if h.Telegram != nil {
				if tgErr := h.Telegram.SendMessage(fmt.Sprintf("<b>Router Unreachable</b>\n\n<b>Router:</b> %s\nAuto-sync failed: %v", routerLabel(router), err)); tgErr != nil {
					h.log.Debug().Err(tgErr).Msg("telegram alert not sent")
				}
			}
			continue
		}
		h.WSHub.Broadcast("sync-complete", result)
	}
}

// ============== Session Handlers ==============

type sessionView struct {
	models.ActiveSession
	RouterID    int64      `json:"routerId"`
	RouterLabel string     `json:"routerLabel"`
	CustomerID  int64      `json:"customerId,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}

// GetActiveSessions aggregates live PPPoE sessions across all active
// routers, correlated with customer records
func (h *Handler) GetActiveSessions(w http.ResponseWriter, r *http.Request) {
	routers, err := h.DB.GetRouters()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get routers")
		return
	}

	now := time.Now()
	views := []sessionView{}
	for _, router := range routers {
		if !router.IsActive {
			continue
		}
		client := h.routerClient(router)
		sessions, err := client.GetActiveSessions()
		client.Close()
		if err != nil {
			h.log.Warn().Err(err).Str("router", router.Host).Msg("failed to read active sessions")
			continue
		}
		for _, s := range sessions {
			v := sessionView{ActiveSession: s, RouterID: router.ID, RouterLabel: routerLabel(router)}
			if d := mikrotik.ParseUptime(s.Uptime); d > 0 {
				connectedAt := now.Add(-d)
				v.ConnectedAt = &connectedAt
			}
			if customer, err := h.DB.GetCustomerByUsername(s.Name); err == nil {
				v.CustomerID = customer.ID
			} else if !errors.Is(err, sql.ErrNoRows) {
				h.log.Warn().Err(err).Str("username", s.Name).Msg("customer lookup failed")
			}
			views = append(views, v)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": views,
		"total":    len(views),
	})
}

// ============== Settings Handlers ==============

// GetSettings returns all stored settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.DB.GetSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get settings")
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// SaveSettings upserts the posted key/value pairs
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]string
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	for key, value := range settings {
		if err := h.DB.SaveSetting(key, value); err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save setting %s", key))
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ChangePassword changes the authenticated admin's password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.NewPassword) < 6 {
		respondError(w, http.StatusBadRequest, "New password must be at least 6 characters")
		return
	}

	admin, err := h.DB.GetAdminByUsername(claims.Username)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Account not found")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.CurrentPassword)); err != nil {
		respondError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	if err := h.DB.UpdateAdminPassword(admin.ID, req.NewPassword); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HealthCheck reports liveness
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ============== Device Write-Through ==============

// routerClient builds a protocol client for a stored router, honoring the
// global driver kill switch.
func (h *Handler) routerClient(router *models.RouterDevice, opts ...mikrotik.Option) *mikrotik.Client {
	base := []mikrotik.Option{
		mikrotik.WithTimeout(h.Config.MikrotikTimeout),
		mikrotik.WithLogger(h.log),
	}
	if h.Config.MikrotikDisabled {
		base = append(base, mikrotik.Disabled())
	}
	return mikrotik.New(router, append(base, opts...)...)
}

// BillingClientFactory adapts routerClient for the overdue sweep.
func (h *Handler) BillingClientFactory(routerID int64) (billing.RouterWriter, error) {
	router, err := h.DB.GetRouter(routerID)
	if err != nil {
		return nil, fmt.Errorf("router %d lookup failed: %v", routerID, err)
	}
	return h.routerClient(router), nil
}

// pushSecret creates the PPPoE secret for a freshly created customer.
func (h *Handler) pushSecret(customer *models.Customer) error {
	router, err := h.DB.GetRouter(customer.RouterID)
	if err != nil {
		return fmt.Errorf("router lookup failed: %v", err)
	}

	sub := models.Subscriber{
		Name:     customer.Username,
		Password: customer.Password,
		Service:  "pppoe",
	}
	if customer.Plan != nil && customer.Plan.ProfileName != "" {
		sub.Profile = customer.Plan.ProfileName
	}

	client := h.routerClient(router)
	defer client.Close()
	return client.AddSubscriber(sub)
}

// pushSecretUpdate applies a partial secret update; when the update
// disables the secret it also kicks any live session.
func (h *Handler) pushSecretUpdate(customer *models.Customer, upd models.SubscriberUpdate) error {
	router, err := h.DB.GetRouter(customer.RouterID)
	if err != nil {
		return fmt.Errorf("router lookup failed: %v", err)
	}

	client := h.routerClient(router)
	defer client.Close()

	id, err := findSecretID(client, customer.Username)
	if err != nil {
		return err
	}
	if err := client.UpdateSubscriber(id, upd); err != nil {
		return err
	}

	if upd.Disabled != nil && *upd.Disabled {
		sessions, err := client.GetActiveSessions()
		if err != nil {
			return nil
		}
		for _, s := range sessions {
			if s.Name != customer.Username {
				continue
			}
			if err := client.DisconnectSession(s.ID); err != nil {
				h.log.Warn().Err(err).Str("session", s.ID).Msg("failed to disconnect session")
			}
		}
		h.WSHub.Broadcast("session-update", map[string]interface{}{
			"routerId": router.ID,
			"username": customer.Username,
		})
	}
	return nil
}

// removeSecret deletes the PPPoE secret belonging to a deleted customer.
func (h *Handler) removeSecret(customer *models.Customer) error {
	router, err := h.DB.GetRouter(customer.RouterID)
	if err != nil {
		return fmt.Errorf("router lookup failed: %v", err)
	}

	client := h.routerClient(router)
	defer client.Close()

	id, err := findSecretID(client, customer.Username)
	if err != nil {
		return err
	}
	return client.RemoveSubscriber(id)
}

func findSecretID(client *mikrotik.Client, username string) (string, error) {
	subs, err := client.GetSubscribers()
	if err != nil {
		return "", fmt.Errorf("failed to list secrets: %v", err)
	}
	for _, sub := range subs {
		if sub.Name == username {
			return sub.ID, nil
		}
	}
	return "", fmt.Errorf("no secret named %q on router", username)
}

// ============== Helpers ==============

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// generateJWT issues a signed token for an authenticated admin
func generateJWT(admin *models.Admin, secret string) (string, error) {
	claims := &middleware.Claims{
		AdminID:  admin.ID,
		Username: admin.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func validCustomerStatus(status models.CustomerStatus) bool {
	switch status {
	case models.CustomerActive, models.CustomerSuspended, models.CustomerDisabled:
		return true
	}
	return false
}

func routerLabel(router *models.RouterDevice) string {
	if router.Label != "" {
		return router.Label
	}
	return router.Host
}

func getPathInt64(r *http.Request, key string) int64 {
	vars := mux.Vars(r)
	val, _ := strconv.ParseInt(vars[key], 10, 64)
	return val
}

func getQueryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func getQueryInt64(r *http.Request, key string) int64 {
	val := r.URL.Query().Get(key)
	if val == "" {
		return 0
	}
	i, _ := strconv.ParseInt(val, 10, 64)
	return i
}
