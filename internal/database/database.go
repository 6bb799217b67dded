package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-netbill/internal/models"

	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrPlanInUse is returned when deleting a plan that still has customers.
var ErrPlanInUse = errors.New("plan has subscribed customers")

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// InitDB initializes the database connection and creates tables
func InitDB(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	wrapper := &DB{db}

	if err := wrapper.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	wrapper.seedDefaultPlans()

	return wrapper, nil
}

func (db *DB) createTables() error {
	tables := []string{
		// Routers table
		`CREATE TABLE IF NOT EXISTS routers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host TEXT NOT NULL,
			api_user TEXT NOT NULL,
			api_password TEXT NOT NULL,
			api_port INTEGER DEFAULT 8728,
			label TEXT,
			is_active BOOLEAN DEFAULT 1,
			last_sync DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Plans table
		`CREATE TABLE IF NOT EXISTS plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			price REAL DEFAULT 0,
			billing_cycle TEXT DEFAULT 'MONTHLY',
			rate_limit TEXT,
			profile_name TEXT DEFAULT 'default',
			description TEXT,
			is_active BOOLEAN DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Customers table
		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			status TEXT DEFAULT 'ACTIVE',
			router_id INTEGER NOT NULL,
			plan_id INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (router_id) REFERENCES routers(id) ON DELETE CASCADE,
			FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE SET NULL
		)`,

		// Invoices table
		`CREATE TABLE IF NOT EXISTS invoices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL,
			amount REAL DEFAULT 0,
			due_date DATETIME NOT NULL,
			status TEXT DEFAULT 'PENDING',
			description TEXT,
			paid_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
		)`,

		// Admins table
		`CREATE TABLE IF NOT EXISTS admins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			email TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table for application config
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_customers_username ON customers(username)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_status ON customers(status)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_router ON customers(router_id)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_plan ON customers(plan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_due ON invoices(status, due_date)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %v\nSQL: %s", err, table)
		}
	}

	return nil
}

// seedDefaultPlans inserts starter service tiers into an empty plans table.
func (db *DB) seedDefaultPlans() {
	var count int
	db.QueryRow("SELECT COUNT(*) FROM plans").Scan(&count)
	if count > 0 {
		return
	}

	seeds := []struct {
		name, rateLimit, profile, desc string
		price                          float64
	}{
		{"Basic", "10M/10M", "basic", "Entry tier for light browsing", 150000},
		{"Standard", "20M/20M", "standard", "Streaming and work from home", 250000},
		{"Premium", "50M/50M", "premium", "Heavy usage and gaming", 400000},
	}
	for _, s := range seeds {
		db.Exec(`
			INSERT INTO plans (name, price, billing_cycle, rate_limit, profile_name, description, is_active)
			VALUES (?, ?, 'MONTHLY', ?, ?, ?, 1)
		`, s.name, s.price, s.rateLimit, s.profile, s.desc)
	}
}

// ============== Admin Operations ==============

// EnsureDefaultAdmin creates the bootstrap admin account if no admins exist
func (db *DB) EnsureDefaultAdmin(username, password string) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM admins").Scan(&count); err != nil {
		return fmt.Errorf("failed to check for existing admin: %v", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %v", err)
	}
	_, err = db.Exec("INSERT INTO admins (username, password) VALUES (?, ?)", username, string(hash))
	if err != nil {
		return fmt.Errorf("failed to create admin user: %v", err)
	}
	return nil
}

// GetAdminByUsername retrieves an admin account for login
func (db *DB) GetAdminByUsername(username string) (*models.Admin, error) {
	var a models.Admin
	var email sql.NullString
	err := db.QueryRow(`
		SELECT id, username, password, email, created_at, updated_at
		FROM admins WHERE username = ?
	`, username).Scan(&a.ID, &a.Username, &a.Password, &email, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		a.Email = email.String
	}
	return &a, nil
}

// UpdateAdminPassword replaces an admin's password hash
func (db *DB) UpdateAdminPassword(id int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %v", err)
	}
	_, err = db.Exec("UPDATE admins SET password = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(hash), id)
	return err
}

// ============== Router Operations ==============

// GetRouters retrieves all registered routers
func (db *DB) GetRouters() ([]*models.RouterDevice, error) {
	rows, err := db.Query(`
		SELECT id, host, api_user, api_password, api_port, label, is_active, last_sync, created_at, updated_at
		FROM routers ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routers []*models.RouterDevice
	for rows.Next() {
		r, err := scanRouter(rows)
		if err != nil {
			return nil, err
		}
		routers = append(routers, r)
	}
	return routers, nil
}

// GetRouter retrieves a router by ID
func (db *DB) GetRouter(id int64) (*models.RouterDevice, error) {
	var r models.RouterDevice
	var label sql.NullString
	var lastSync sql.NullTime
	err := db.QueryRow(`
		SELECT id, host, api_user, api_password, api_port, label, is_active, last_sync, created_at, updated_at
		FROM routers WHERE id = ?
	`, id).Scan(&r.ID, &r.Host, &r.APIUser, &r.APIPassword, &r.APIPort, &label, &r.IsActive, &lastSync, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if label.Valid {
		r.Label = label.String
	}
	if lastSync.Valid {
		r.LastSync = &lastSync.Time
	}
	return &r, nil
}

// CreateRouter registers a router. The API password is stored bcrypt-hashed;
// a live login needs the plaintext, which only the caller holds.
func (db *DB) CreateRouter(router *models.RouterDevice) (*models.RouterDevice, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(router.APIPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	result, err := db.Exec(`
		INSERT INTO routers (host, api_user, api_password, api_port, label, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, router.Host, router.APIUser, string(hash), router.APIPort, router.Label, router.IsActive)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetRouter(id)
}

// UpdateRouter updates a router. An empty APIPassword keeps the stored one.
func (db *DB) UpdateRouter(router *models.RouterDevice) error {
	if router.APIPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(router.APIPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		_, err = db.Exec(`
			UPDATE routers SET host = ?, api_user = ?, api_password = ?, api_port = ?, label = ?,
			is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, router.Host, router.APIUser, string(hash), router.APIPort, router.Label, router.IsActive, router.ID)
		return err
	}

	_, err := db.Exec(`
		UPDATE routers SET host = ?, api_user = ?, api_port = ?, label = ?,
		is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, router.Host, router.APIUser, router.APIPort, router.Label, router.IsActive, router.ID)
	return err
}

// DeleteRouter deletes a router and cascades to its customers
func (db *DB) DeleteRouter(id int64) error {
	_, err := db.Exec("DELETE FROM routers WHERE id = ?", id)
	return err
}

// UpdateRouterLastSync stamps the completion time of a reconciliation pass
func (db *DB) UpdateRouterLastSync(id int64, at time.Time) error {
	_, err := db.Exec("UPDATE routers SET last_sync = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", at, id)
	return err
}

func scanRouter(rows *sql.Rows) (*models.RouterDevice, error) {
	var r models.RouterDevice
	var label sql.NullString
	var lastSync sql.NullTime
	err := rows.Scan(&r.ID, &r.Host, &r.APIUser, &r.APIPassword, &r.APIPort, &label, &r.IsActive, &lastSync, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if label.Valid {
		r.Label = label.String
	}
	if lastSync.Valid {
		r.LastSync = &lastSync.Time
	}
	return &r, nil
}

// ============== Plan Operations ==============

// GetPlans retrieves all plans with subscriber counts
func (db *DB) GetPlans(activeOnly bool) ([]*models.Plan, error) {
	query := `
		SELECT p.id, p.name, p.price, p.billing_cycle, p.rate_limit, p.profile_name, p.description,
		       p.is_active, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM customers WHERE plan_id = p.id) AS subscribers
		FROM plans p
	`
	if activeOnly {
		query += " WHERE p.is_active = 1"
	}
	query += " ORDER BY p.price ASC"

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		var p models.Plan
		var rateLimit, desc sql.NullString
		err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.BillingCycle, &rateLimit, &p.ProfileName,
			&desc, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.Subscribers)
		if err != nil {
			return nil, err
		}
		p.RateLimit = rateLimit.String
		p.Description = desc.String
		plans = append(plans, &p)
	}
	return plans, nil
}

// GetPlan retrieves a plan by ID
func (db *DB) GetPlan(id int64) (*models.Plan, error) {
	var p models.Plan
	var rateLimit, desc sql.NullString
	err := db.QueryRow(`
		SELECT p.id, p.name, p.price, p.billing_cycle, p.rate_limit, p.profile_name, p.description,
		       p.is_active, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM customers WHERE plan_id = p.id) AS subscribers
		FROM plans p WHERE p.id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.BillingCycle, &rateLimit, &p.ProfileName,
		&desc, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.Subscribers)
	if err != nil {
		return nil, err
	}
	p.RateLimit = rateLimit.String
	p.Description = desc.String
	return &p, nil
}

// CreatePlan creates a new plan
func (db *DB) CreatePlan(plan *models.Plan) (*models.Plan, error) {
	result, err := db.Exec(`
		INSERT INTO plans (name, price, billing_cycle, rate_limit, profile_name, description, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, plan.Name, plan.Price, plan.BillingCycle, plan.RateLimit, plan.ProfileName, plan.Description, plan.IsActive)
	if err != nil {
		return nil, err
	}
	id, _ := result.LastInsertId()
	return db.GetPlan(id)
}

// UpdatePlan updates a plan
func (db *DB) UpdatePlan(plan *models.Plan) error {
	_, err := db.Exec(`
		UPDATE plans SET name = ?, price = ?, billing_cycle = ?, rate_limit = ?, profile_name = ?,
		description = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, plan.Name, plan.Price, plan.BillingCycle, plan.RateLimit, plan.ProfileName, plan.Description, plan.IsActive, plan.ID)
	return err
}

// DeletePlan deletes a plan. Refuses while customers still reference it.
func (db *DB) DeletePlan(id int64) error {
	count, err := db.CountCustomersByPlan(id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrPlanInUse
	}
	_, err = db.Exec("DELETE FROM plans WHERE id = ?", id)
	return err
}

// CountCustomersByPlan counts customers subscribed to a plan
func (db *DB) CountCustomersByPlan(planID int64) (int64, error) {
	var count int64
	err := db.QueryRow("SELECT COUNT(*) FROM customers WHERE plan_id = ?", planID).Scan(&count)
	return count, err
}

// ============== Customer Operations ==============

const customerSelect = `
	SELECT c.id, c.username, c.password, c.status, c.router_id, c.plan_id, c.created_at, c.updated_at,
	       (SELECT COUNT(*) FROM invoices WHERE customer_id = c.id) AS invoice_count,
	       p.name, p.price, p.billing_cycle, p.rate_limit, p.profile_name,
	       r.host, r.label
	FROM customers c
	LEFT JOIN plans p ON c.plan_id = p.id
	LEFT JOIN routers r ON c.router_id = r.id
`

// GetCustomers retrieves customers with optional status filter and search
func (db *DB) GetCustomers(status string, search string, limit, offset int) ([]*models.Customer, int64, error) {
	var conditions []string
	var args []interface{}

	if status != "" && status != "all" {
		conditions = append(conditions, "c.status = ?")
		args = append(args, status)
	}

	if search != "" {
		conditions = append(conditions, "c.username LIKE ?")
		args = append(args, "%"+search+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM customers c " + whereClause
	if err := db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("%s %s ORDER BY c.created_at DESC LIMIT ? OFFSET ?", customerSelect, whereClause)
	args = append(args, limit, offset)
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, nil
}

// GetCustomer retrieves a customer by ID
func (db *DB) GetCustomer(id int64) (*models.Customer, error) {
	rows, err := db.Query(customerSelect+" WHERE c.id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanCustomer(rows)
}

// GetCustomerByUsername retrieves a customer by PPPoE username
func (db *DB) GetCustomerByUsername(username string) (*models.Customer, error) {
	rows, err := db.Query(customerSelect+" WHERE c.username = ?", username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanCustomer(rows)
}

// CreateCustomer creates a customer record
func (db *DB) CreateCustomer(customer *models.Customer) (*models.Customer, error) {
	status := customer.Status
	if status == "" {
		status = models.CustomerActive
	}
	result, err := db.Exec(`
		INSERT INTO customers (username, password, status, router_id, plan_id)
		VALUES (?, ?, ?, ?, ?)
	`, customer.Username, customer.Password, status, customer.RouterID, customer.PlanID)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetCustomer(id)
}

// UpdateCustomer updates a customer record
func (db *DB) UpdateCustomer(customer *models.Customer) error {
	_, err := db.Exec(`
		UPDATE customers SET username = ?, password = ?, status = ?, router_id = ?, plan_id = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, customer.Username, customer.Password, customer.Status, customer.RouterID, customer.PlanID, customer.ID)
	return err
}

// UpdateCustomerStatus changes only the lifecycle state
func (db *DB) UpdateCustomerStatus(id int64, status models.CustomerStatus) error {
	_, err := db.Exec("UPDATE customers SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
	return err
}

// DeleteCustomer deletes a customer and cascades to its invoices
func (db *DB) DeleteCustomer(id int64) error {
	_, err := db.Exec("DELETE FROM customers WHERE id = ?", id)
	return err
}

func scanCustomer(rows *sql.Rows) (*models.Customer, error) {
	var c models.Customer
	var planID sql.NullInt64
	var pName, pCycle, pRate, pProfile sql.NullString
	var pPrice sql.NullFloat64
	var rHost, rLabel sql.NullString

	err := rows.Scan(&c.ID, &c.Username, &c.Password, &c.Status, &c.RouterID, &planID,
		&c.CreatedAt, &c.UpdatedAt, &c.InvoiceCount,
		&pName, &pPrice, &pCycle, &pRate, &pProfile,
		&rHost, &rLabel)
	if err != nil {
		return nil, err
	}

	if planID.Valid {
		c.PlanID = &planID.Int64
	}
	if pName.Valid {
		c.Plan = &models.Plan{
			ID:           planID.Int64,
			Name:         pName.String,
			Price:        pPrice.Float64,
			BillingCycle: models.BillingCycle(pCycle.String),
			RateLimit:    pRate.String,
			ProfileName:  pProfile.String,
		}
	}
	if rHost.Valid {
		c.Router = &models.RouterDevice{
			ID:    c.RouterID,
			Host:  rHost.String,
			Label: rLabel.String,
		}
	}
	return &c, nil
}

// ============== Invoice Operations ==============

const invoiceSelect = `
	SELECT i.id, i.customer_id, i.amount, i.due_date, i.status, i.description, i.paid_at,
	       i.created_at, i.updated_at,
	       c.username, c.status, c.router_id
	FROM invoices i
	JOIN customers c ON i.customer_id = c.id
`

// GetInvoices retrieves invoices with optional status and customer filters
func (db *DB) GetInvoices(status string, customerID int64, limit, offset int) ([]*models.Invoice, int64, error) {
	var conditions []string
	var args []interface{}

	if status != "" && status != "all" {
		conditions = append(conditions, "i.status = ?")
		args = append(args, status)
	}
	if customerID > 0 {
		conditions = append(conditions, "i.customer_id = ?")
		args = append(args, customerID)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM invoices i " + whereClause
	if err := db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("%s %s ORDER BY i.due_date DESC LIMIT ? OFFSET ?", invoiceSelect, whereClause)
	args = append(args, limit, offset)
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, nil
}

// GetInvoice retrieves an invoice by ID
func (db *DB) GetInvoice(id int64) (*models.Invoice, error) {
	rows, err := db.Query(invoiceSelect+" WHERE i.id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanInvoice(rows)
}

// CreateInvoice creates an invoice for a customer
func (db *DB) CreateInvoice(invoice *models.Invoice) (*models.Invoice, error) {
	status := invoice.Status
	if status == "" {
		status = models.InvoicePending
	}
	result, err := db.Exec(`
		INSERT INTO invoices (customer_id, amount, due_date, status, description)
		VALUES (?, ?, ?, ?, ?)
	`, invoice.CustomerID, invoice.Amount, invoice.DueDate, status, invoice.Description)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetInvoice(id)
}

// UpdateInvoice updates an invoice
func (db *DB) UpdateInvoice(invoice *models.Invoice) error {
	_, err := db.Exec(`
		UPDATE invoices SET amount = ?, due_date = ?, status = ?, description = ?, paid_at = ?,
		updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, invoice.Amount, invoice.DueDate, invoice.Status, invoice.Description, invoice.PaidAt, invoice.ID)
	return err
}

// DeleteInvoice deletes an invoice
func (db *DB) DeleteInvoice(id int64) error {
	_, err := db.Exec("DELETE FROM invoices WHERE id = ?", id)
	return err
}

// MarkInvoicePaid settles an invoice
func (db *DB) MarkInvoicePaid(id int64, paidAt time.Time) error {
	_, err := db.Exec(`
		UPDATE invoices SET status = ?, paid_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, models.InvoicePaid, paidAt, id)
	return err
}

// MarkInvoiceOverdue flags a pending invoice that passed its due date
func (db *DB) MarkInvoiceOverdue(id int64) error {
	_, err := db.Exec(`
		UPDATE invoices SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, models.InvoiceOverdue, id)
	return err
}

// GetDueInvoices returns PENDING invoices whose due date has passed, with
// enough of the owning customer attached to act on the account.
func (db *DB) GetDueInvoices(now time.Time) ([]*models.Invoice, error) {
	rows, err := db.Query(invoiceSelect+" WHERE i.status = ? AND i.due_date < ? ORDER BY i.due_date ASC",
		models.InvoicePending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// HasInvoiceForPeriod reports whether a customer already has an invoice
// tagged with the given billing period in its description
func (db *DB) HasInvoiceForPeriod(customerID int64, period string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM invoices WHERE customer_id = ? AND description LIKE ?
	`, customerID, "%"+period+"%").Scan(&count)
	return count > 0, err
}

// CountOverdueInvoices counts a customer's unresolved OVERDUE invoices
func (db *DB) CountOverdueInvoices(customerID int64) (int64, error) {
	var count int64
	err := db.QueryRow(`
		SELECT COUNT(*) FROM invoices WHERE customer_id = ? AND status = ?
	`, customerID, models.InvoiceOverdue).Scan(&count)
	return count, err
}

func scanInvoice(rows *sql.Rows) (*models.Invoice, error) {
	var inv models.Invoice
	var desc sql.NullString
	var paidAt sql.NullTime
	var custUsername string
	var custStatus models.CustomerStatus
	var custRouterID int64

	err := rows.Scan(&inv.ID, &inv.CustomerID, &inv.Amount, &inv.DueDate, &inv.Status, &desc, &paidAt,
		&inv.CreatedAt, &inv.UpdatedAt,
		&custUsername, &custStatus, &custRouterID)
	if err != nil {
		return nil, err
	}

	if desc.Valid {
		inv.Description = desc.String
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
	inv.Customer = &models.Customer{
		ID:       inv.CustomerID,
		Username: custUsername,
		Status:   custStatus,
		RouterID: custRouterID,
	}
	return &inv, nil
}

// ============== Dashboard Operations ==============

// GetDashboardStats retrieves the landing-page aggregates
func (db *DB) GetDashboardStats() (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}

	db.QueryRow("SELECT COUNT(*) FROM customers").Scan(&stats.TotalCustomers)
	db.QueryRow("SELECT COUNT(*) FROM customers WHERE status = 'ACTIVE'").Scan(&stats.ActiveCustomers)
	db.QueryRow("SELECT COUNT(*) FROM customers WHERE status = 'SUSPENDED'").Scan(&stats.SuspendedCustomers)
	db.QueryRow("SELECT COUNT(*) FROM routers").Scan(&stats.TotalRouters)
	db.QueryRow("SELECT COUNT(*) FROM routers WHERE is_active = 1").Scan(&stats.ActiveRouters)
	db.QueryRow("SELECT COUNT(*) FROM invoices WHERE status = 'PENDING'").Scan(&stats.PendingInvoices)
	db.QueryRow("SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM invoices WHERE status = 'OVERDUE'").
		Scan(&stats.OverdueInvoices, &stats.OverdueAmount)
	db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM invoices
		WHERE status = 'PAID' AND strftime('%Y-%m', paid_at) = strftime('%Y-%m', 'now')
	`).Scan(&stats.MonthlyRevenue)

	return stats, nil
}

// ============== Settings Operations ==============

// GetSetting retrieves a configuration value by key; missing keys return ""
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SaveSetting saves or updates a configuration value
func (db *DB) SaveSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// GetSettings retrieves all settings
func (db *DB) GetSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, nil
}
