package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go-netbill/internal/billing"
	"go-netbill/internal/config"
	"go-netbill/internal/database"
	"go-netbill/internal/mailer"
	"go-netbill/internal/middleware"
	"go-netbill/internal/models"
	"go-netbill/internal/syncer"
	"go-netbill/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler builds a handler over a throwaway database with the RouterOS
// driver disabled, so device writes fail softly and reads serve synthetic
// data.
func testHandler(t *testing.T) *Handler {
	t.Helper()

	db, err := database.InitDB(filepath.Join(t.TempDir(), "netbill.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.EnsureDefaultAdmin("admin", "admin123"))

	hub := websocket.NewHub()
	go hub.Run()

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		MikrotikTimeout:  time.Second,
		MikrotikDisabled: true,
	}
	log := zerolog.Nop()

	h := NewHandler(db, hub, mailer.New(mailer.Config{}), nil, nil, syncer.New(db, log), cfg, log)
	h.Checker = billing.New(db, h.BillingClientFactory, nil, time.Hour, log)
	return h
}

func testRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", h.Login).Methods("POST")
	api.HandleFunc("/dashboard/stats", h.GetDashboardStats).Methods("GET")

	api.HandleFunc("/customers", h.GetCustomers).Methods("GET")
	api.HandleFunc("/customers", h.CreateCustomer).Methods("POST")
	api.HandleFunc("/customers/{id}", h.GetCustomer).Methods("GET")
	api.HandleFunc("/customers/{id}", h.UpdateCustomer).Methods("PUT")
	api.HandleFunc("/customers/{id}", h.DeleteCustomer).Methods("DELETE")
	api.HandleFunc("/customers/{id}/suspend", h.SuspendCustomer).Methods("POST")
	api.HandleFunc("/customers/{id}/activate", h.ActivateCustomer).Methods("POST")

	api.HandleFunc("/plans", h.GetPlans).Methods("GET")
	api.HandleFunc("/plans", h.CreatePlan).Methods("POST")
	api.HandleFunc("/plans/{id}", h.DeletePlan).Methods("DELETE")

	api.HandleFunc("/invoices", h.GetInvoices).Methods("GET")
	api.HandleFunc("/invoices", h.CreateInvoice).Methods("POST")
	api.HandleFunc("/invoices/generate", h.GenerateInvoices).Methods("POST")
	api.HandleFunc("/invoices/{id}", h.GetInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}/pay", h.PayInvoice).Methods("POST")

	api.HandleFunc("/routers", h.GetRouters).Methods("GET")
	api.HandleFunc("/routers", h.CreateRouter).Methods("POST")
	api.HandleFunc("/routers/{id}", h.GetRouter).Methods("GET")
	api.HandleFunc("/routers/{id}/sync", h.SyncRouter).Methods("POST")
	api.HandleFunc("/routers/{id}/status", h.GetRouterStatus).Methods("GET")

	api.HandleFunc("/sessions", h.GetActiveSessions).Methods("GET")

	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/settings", h.SaveSettings).Methods("POST")
	api.HandleFunc("/settings/password", h.ChangePassword).Methods("POST")

	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func seedRouter(t *testing.T, h *Handler) *models.RouterDevice {
	t.Helper()
	router, err := h.DB.CreateRouter(&models.RouterDevice{
		Host:        "10.0.0.1",
		APIUser:     "api",
		APIPassword: "apipass",
		Label:       "core",
		IsActive:    true,
	})
	require.NoError(t, err)
	return router
}

func seedCustomer(t *testing.T, h *Handler, routerID int64, username string) *models.Customer {
	t.Helper()
	customer, err := h.DB.CreateCustomer(&models.Customer{
		Username: username,
		Password: "pw",
		RouterID: routerID,
	})
	require.NoError(t, err)
	return customer
}

func TestLogin(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Token)

	rec = doJSON(t, router, "POST", "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateCustomerReportsDeviceWriteFailure(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)

	rec := doJSON(t, router, "POST", "/api/customers", map[string]interface{}{
		"username": "alice",
		"password": "secret",
		"routerId": rt.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The driver is disabled, so the secret push cannot reach a device
	// and the response carries a warning alongside the saved record.
	var resp struct {
		Customer *models.Customer `json:"customer"`
		Warning  string           `json:"warning"`
	}
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Customer)
	assert.Equal(t, "alice", resp.Customer.Username)
	assert.Contains(t, resp.Warning, "device write failed")

	stored, err := h.DB.GetCustomerByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, models.CustomerActive, stored.Status)
}

func TestCreateCustomerValidation(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/api/customers", map[string]interface{}{
		"username": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/api/customers", map[string]interface{}{
		"username": "alice",
		"password": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuspendAndActivateCustomer(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)
	customer := seedCustomer(t, h, rt.ID, "bob")

	rec := doJSON(t, router, "POST", fmt.Sprintf("/api/customers/%d/suspend", customer.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := h.DB.GetCustomer(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CustomerSuspended, stored.Status)

	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/customers/%d/activate", customer.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err = h.DB.GetCustomer(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CustomerActive, stored.Status)
}

func TestUpdateCustomerPartial(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)
	customer := seedCustomer(t, h, rt.ID, "carol")

	rec := doJSON(t, router, "PUT", fmt.Sprintf("/api/customers/%d", customer.ID), map[string]interface{}{
		"password": "rotated",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := h.DB.GetCustomer(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", stored.Password)
	assert.Equal(t, models.CustomerActive, stored.Status, "untouched fields keep their values")

	rec = doJSON(t, router, "PUT", fmt.Sprintf("/api/customers/%d", customer.ID), map[string]interface{}{
		"status": "BOGUS",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCustomer(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)
	customer := seedCustomer(t, h, rt.ID, "dave")

	rec := doJSON(t, router, "DELETE", fmt.Sprintf("/api/customers/%d", customer.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := h.DB.GetCustomer(customer.ID)
	assert.Error(t, err)

	rec = doJSON(t, router, "DELETE", fmt.Sprintf("/api/customers/%d", customer.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePlanInUse(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)

	plans, err := h.DB.GetPlans(false)
	require.NoError(t, err)
	require.NotEmpty(t, plans, "default plans are seeded")
	planID := plans[0].ID

	customer := seedCustomer(t, h, rt.ID, "erin")
	customer.PlanID = &planID
	require.NoError(t, h.DB.UpdateCustomer(customer))

	rec := doJSON(t, router, "DELETE", fmt.Sprintf("/api/plans/%d", planID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, h.DB.DeleteCustomer(customer.ID))
	rec = doJSON(t, router, "DELETE", fmt.Sprintf("/api/plans/%d", planID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPayInvoiceReactivatesCustomer(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)
	customer := seedCustomer(t, h, rt.ID, "frank")

	invoice, err := h.DB.CreateInvoice(&models.Invoice{
		CustomerID: customer.ID,
		Amount:     150000,
		DueDate:    time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, h.DB.MarkInvoiceOverdue(invoice.ID))
	require.NoError(t, h.DB.UpdateCustomerStatus(customer.ID, models.CustomerSuspended))

	rec := doJSON(t, router, "POST", fmt.Sprintf("/api/invoices/%d/pay", invoice.ID), map[string]interface{}{
		"reactivateCustomer": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Invoice     *models.Invoice `json:"invoice"`
		Reactivated bool            `json:"reactivated"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, models.InvoicePaid, resp.Invoice.Status)
	assert.True(t, resp.Reactivated)

	stored, err := h.DB.GetCustomer(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CustomerActive, stored.Status)

	// Paying an already-paid invoice is rejected
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/invoices/%d/pay", invoice.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateInvoicesOncePerPeriod(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)

	plans, err := h.DB.GetPlans(false)
	require.NoError(t, err)
	planID := plans[0].ID

	customer := seedCustomer(t, h, rt.ID, "grace")
	customer.PlanID = &planID
	require.NoError(t, h.DB.UpdateCustomer(customer))

	// Plan-less customers never get an invoice
	seedCustomer(t, h, rt.ID, "heidi")

	rec := doJSON(t, router, "POST", "/api/invoices/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Generated int `json:"generated"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, 1, resp.Generated)

	rec = doJSON(t, router, "POST", "/api/invoices/generate", nil)
	decodeBody(t, rec, &resp)
	assert.Equal(t, 0, resp.Generated, "a period is billed once")
}

func TestSyncRouterRefusesSyntheticData(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)

	// With the driver disabled the router can never report connected, so
	// the sync must refuse rather than import fixture secrets.
	rec := doJSON(t, router, "POST", fmt.Sprintf("/api/routers/%d/sync", rt.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	customers, total, err := h.DB.GetCustomers("", "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, customers)
	assert.Zero(t, total)
}

func TestRouterStatusWithoutDriver(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)

	rec := doJSON(t, router, "GET", fmt.Sprintf("/api/routers/%d/status", rt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RouterID int64 `json:"routerId"`
		Status   struct {
			Connected    bool   `json:"connected"`
			UsingRealAPI bool   `json:"usingRealApi"`
			Message      string `json:"message"`
		} `json:"status"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, rt.ID, resp.RouterID)
	assert.False(t, resp.Status.Connected)
	assert.False(t, resp.Status.UsingRealAPI)
	assert.NotEmpty(t, resp.Status.Message)
}

func TestGetActiveSessionsServesSyntheticData(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)
	seedCustomer(t, h, rt.ID, "test-user-1")

	rec := doJSON(t, router, "GET", "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []struct {
			Name        string     `json:"name"`
			Uptime      string     `json:"uptime"`
			RouterID    int64      `json:"routerId"`
			CustomerID  int64      `json:"customerId"`
			ConnectedAt *time.Time `json:"connectedAt"`
		} `json:"sessions"`
		Total int `json:"total"`
	}
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Total)

	session := resp.Sessions[0]
	assert.Equal(t, "test-user-1", session.Name)
	assert.Equal(t, rt.ID, session.RouterID)
	assert.NotZero(t, session.CustomerID, "session is correlated with the customer record")
	require.NotNil(t, session.ConnectedAt)
	assert.True(t, session.ConnectedAt.Before(time.Now()))
}

func TestCreateRouterHashesPassword(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/api/routers", map[string]interface{}{
		"host":        "192.168.88.1",
		"apiUser":     "api",
		"apiPassword": "plaintext",
		"label":       "edge",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Router *models.RouterDevice `json:"router"`
	}
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Router)

	stored, err := h.DB.GetRouter(resp.Router.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "plaintext", stored.APIPassword)
	assert.NotEmpty(t, stored.APIPassword)
}

func TestSettingsRoundTrip(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/api/settings", map[string]string{
		"company_name": "NetBill ISP",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var settings map[string]string
	decodeBody(t, rec, &settings)
	assert.Equal(t, "NetBill ISP", settings["company_name"])
}

func TestChangePasswordThroughMiddleware(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	protected := middleware.AuthMiddleware(h.Config.JWTSecret)(router)

	login := doJSON(t, router, "POST", "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	require.Equal(t, http.StatusOK, login.Code)
	var loginResp struct {
		Token string `json:"token"`
	}
	decodeBody(t, login, &loginResp)

	body, err := json.Marshal(map[string]string{
		"currentPassword": "admin123",
		"newPassword":     "changed-pw",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/settings/password", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Old password no longer works, new one does
	rec2 := doJSON(t, router, "POST", "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	rec2 = doJSON(t, router, "POST", "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "changed-pw",
	})
	assert.Equal(t, http.StatusOK, rec2.Code)

	// No token, no password change
	req = httptest.NewRequest("POST", "/api/settings/password", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardStats(t *testing.T) {
	h := testHandler(t)
	router := testRouter(h)
	rt := seedRouter(t, h)
	seedCustomer(t, h, rt.ID, "ivan")

	rec := doJSON(t, router, "GET", "/api/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stats *models.DashboardStats `json:"stats"`
	}
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Stats)
	assert.Equal(t, int64(1), resp.Stats.TotalCustomers)
	assert.Equal(t, int64(1), resp.Stats.TotalRouters)
}
