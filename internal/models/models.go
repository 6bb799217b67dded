package models

import "time"

// RouterDevice represents a managed MikroTik router
type RouterDevice struct {
	ID      int64  `json:"id"`
	Host    string `json:"host"`
	APIUser string `json:"apiUser"`
	// Stored bcrypt-hashed; never usable for a live login directly.
	// Callers that hold the plaintext pass it to the adapter separately.
	APIPassword string     `json:"-"`
	APIPort     int        `json:"apiPort"`
	Label       string     `json:"label"`
	IsActive    bool       `json:"isActive"`
	LastSync    *time.Time `json:"lastSync,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Subscriber represents a PPPoE secret on the router. It exists only in
// device state; the application mirrors username/password/status onto the
// Customer record.
type Subscriber struct {
	ID            string `json:"id"` // RouterOS internal id, e.g. "*1"
	Name          string `json:"name"`
	Password      string `json:"password"`
	Service       string `json:"service"`
	Profile       string `json:"profile"`
	RemoteAddress string `json:"remoteAddress"`
	Disabled      bool   `json:"disabled"`
	Comment       string `json:"comment,omitempty"`
}

// SubscriberUpdate carries a partial update; nil fields are left untouched.
type SubscriberUpdate struct {
	Name          *string `json:"name,omitempty"`
	Password      *string `json:"password,omitempty"`
	Service       *string `json:"service,omitempty"`
	Profile       *string `json:"profile,omitempty"`
	RemoteAddress *string `json:"remoteAddress,omitempty"`
	Disabled      *bool   `json:"disabled,omitempty"`
	Comment       *string `json:"comment,omitempty"`
}

// ActiveSession represents a live PPPoE connection reported by the router.
// Ephemeral; polled on demand, never persisted.
type ActiveSession struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Service    string `json:"service"`
	CallerID   string `json:"callerId"`
	Address    string `json:"address"`
	Uptime     string `json:"uptime"`
	BytesIn    int64  `json:"bytesIn"`
	BytesOut   int64  `json:"bytesOut"`
	PacketsIn  int64  `json:"packetsIn"`
	PacketsOut int64  `json:"packetsOut"`
}

// CustomerStatus represents the lifecycle state of a customer account
type CustomerStatus string

const (
	CustomerActive    CustomerStatus = "ACTIVE"
	CustomerSuspended CustomerStatus = "SUSPENDED"
	CustomerDisabled  CustomerStatus = "DISABLED"
)

// Customer represents an ISP customer; username is unique system-wide
type Customer struct {
	ID       int64          `json:"id"`
	Username string         `json:"username"`
	Password string         `json:"password"` // PPPoE secret mirror, plaintext by protocol necessity
	Status   CustomerStatus `json:"status"`
	RouterID int64          `json:"routerId"`
	Router   *RouterDevice  `json:"router,omitempty"`
	PlanID   *int64         `json:"planId,omitempty"`
	Plan     *Plan          `json:"plan,omitempty"`
	Invoices []*Invoice     `json:"invoices,omitempty"`

	InvoiceCount int64     `json:"invoiceCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BillingCycle represents how often a plan bills
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "MONTHLY"
	CycleQuarterly BillingCycle = "QUARTERLY"
	CycleYearly    BillingCycle = "YEARLY"
)

// Plan represents a service tier template
type Plan struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Price        float64      `json:"price"`
	BillingCycle BillingCycle `json:"billingCycle"`
	RateLimit    string       `json:"rateLimit"`   // e.g. "10M/10M"
	ProfileName  string       `json:"profileName"` // PPP profile on the router
	Description  string       `json:"description"`
	IsActive     bool         `json:"isActive"`
	Subscribers  int64        `json:"subscribers"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// InvoiceStatus represents invoice payment status
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoiceOverdue   InvoiceStatus = "OVERDUE"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Invoice represents a billing record owned by one customer
type Invoice struct {
	ID          int64         `json:"id"`
	CustomerID  int64         `json:"customerId"`
	Customer    *Customer     `json:"customer,omitempty"`
	Amount      float64       `json:"amount"`
	DueDate     time.Time     `json:"dueDate"`
	Status      InvoiceStatus `json:"status"`
	Description string        `json:"description"`
	PaidAt      *time.Time    `json:"paidAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Admin represents a dashboard operator account
type Admin struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"` // bcrypt hash, never exposed
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DashboardStats represents the landing-page aggregates
type DashboardStats struct {
	TotalCustomers     int64   `json:"totalCustomers"`
	ActiveCustomers    int64   `json:"activeCustomers"`
	SuspendedCustomers int64   `json:"suspendedCustomers"`
	TotalRouters       int64   `json:"totalRouters"`
	ActiveRouters      int64   `json:"activeRouters"`
	PendingInvoices    int64   `json:"pendingInvoices"`
	OverdueInvoices    int64   `json:"overdueInvoices"`
	OverdueAmount      float64 `json:"overdueAmount"`
	MonthlyRevenue     float64 `json:"monthlyRevenue"`
}

// SyncResult reports one reconciliation pass against a router
type SyncResult struct {
	RouterID int64     `json:"routerId"`
	Synced   int       `json:"syncedCount"`
	Created  int       `json:"createdCount"`
	Updated  int       `json:"updatedCount"`
	LastSync time.Time `json:"lastSync"`
}
