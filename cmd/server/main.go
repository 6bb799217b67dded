package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go-netbill/internal/billing"
	"go-netbill/internal/config"
	"go-netbill/internal/database"
	"go-netbill/internal/handlers"
	"go-netbill/internal/logger"
	"go-netbill/internal/mailer"
	"go-netbill/internal/middleware"
	"go-netbill/internal/models"
	"go-netbill/internal/notification/telegram"
	"go-netbill/internal/scheduler"
	"go-netbill/internal/syncer"
	"go-netbill/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func main() {
	printBanner()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if err := db.EnsureDefaultAdmin(cfg.AdminUser, cfg.AdminPass); err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin account")
	}
	log.Info().Str("path", cfg.DatabaseURL).Msg("database initialized")

	// WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Info().Msg("websocket hub started")

	// Mailer runs in mock mode when no SMTP host is configured
	mailService := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	})

	telegramClient := telegram.New(cfg.TelegramToken, cfg.TelegramChatID)

	syncEngine := syncer.New(db, log)

	// HTTP handlers; the billing checker is attached below because it
	// borrows the handler's router client factory
	h := handlers.NewHandler(db, wsHub, mailService, telegramClient, nil, syncEngine, cfg, log)

	notifier := &opsNotifier{
		mailer:     mailService,
		telegram:   telegramClient,
		adminEmail: cfg.AdminEmail,
		log:        log,
	}
	checker := billing.New(db, h.BillingClientFactory, notifier, cfg.SweepInterval, log)
	h.Checker = checker
	checker.Start()
	defer checker.Stop()
	log.Info().Dur("interval", cfg.SweepInterval).Msg("billing sweep started")

	sched := scheduler.New(h, cfg.SyncInterval, log)
	sched.Start()
	defer sched.Stop()

	router := setupRouter(h, wsHub)

	allowedOrigins := []string{
		"http://localhost:8080",
		"http://localhost:3000",
	}
	if origin := os.Getenv("ALLOWED_ORIGINS"); origin != "" {
		allowedOrigins = append(allowedOrigins, strings.Split(origin, ",")...)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	handler := c.Handler(authMiddleware(router))

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("shutting down")
		sched.Stop()
		checker.Stop()
		db.Close()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Int("port", cfg.ServerPort).Msg("http server starting")
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

// opsNotifier fans billing sweep events out to the configured channels.
// Delivery is best-effort; a dead bot must never block a sweep.
type opsNotifier struct {
	mailer     *mailer.Mailer
	telegram   *telegram.Client
	adminEmail string
	log        zerolog.Logger
}

func (n *opsNotifier) NotifyOverdue(customer *models.Customer, invoice *models.Invoice) {
	if err := n.telegram.SendOverdueAlert(customer.Username, invoice.Amount, invoice.DueDate); err != nil {
		n.log.Debug().Err(err).Msg("telegram overdue alert not sent")
	}
	if n.adminEmail != "" {
		body := mailer.GenerateOverdueHTML(customer.Username,
			fmt.Sprintf("%.2f", invoice.Amount),
			invoice.DueDate.Format("2006-01-02"))
		if err := n.mailer.Send(n.adminEmail, "Invoice overdue: "+customer.Username, body); err != nil {
			n.log.Warn().Err(err).Msg("overdue mail not sent")
		}
	}
}

func (n *opsNotifier) NotifySweepDone(result billing.SweepResult) {
	if err := n.telegram.SendSweepSummary(result.Marked, result.Suspended); err != nil {
		n.log.Debug().Err(err).Msg("telegram sweep summary not sent")
	}
}

func setupRouter(h *handlers.Handler, wsHub *websocket.Hub) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// API routes
	api := router.PathPrefix("/api").Subrouter()

	// Authentication
	api.HandleFunc("/auth/login", h.Login).Methods("POST")
	api.HandleFunc("/auth/logout", h.Logout).Methods("POST")

	// Dashboard
	api.HandleFunc("/dashboard/stats", h.GetDashboardStats).Methods("GET")

	// Customers
	api.HandleFunc("/customers", h.GetCustomers).Methods("GET")
	api.HandleFunc("/customers", h.CreateCustomer).Methods("POST")
	api.HandleFunc("/customers/{id}", h.GetCustomer).Methods("GET")
	api.HandleFunc("/customers/{id}", h.UpdateCustomer).Methods("PUT")
	api.HandleFunc("/customers/{id}", h.DeleteCustomer).Methods("DELETE")
	api.HandleFunc("/customers/{id}/suspend", h.SuspendCustomer).Methods("POST")
	api.HandleFunc("/customers/{id}/activate", h.ActivateCustomer).Methods("POST")

	// Plans
	api.HandleFunc("/plans", h.GetPlans).Methods("GET")
	api.HandleFunc("/plans", h.CreatePlan).Methods("POST")
	api.HandleFunc("/plans/{id}", h.GetPlan).Methods("GET")
	api.HandleFunc("/plans/{id}", h.UpdatePlan).Methods("PUT")
	api.HandleFunc("/plans/{id}", h.DeletePlan).Methods("DELETE")

	// Invoices
	api.HandleFunc("/invoices", h.GetInvoices).Methods("GET")
	api.HandleFunc("/invoices", h.CreateInvoice).Methods("POST")
	api.HandleFunc("/invoices/generate", h.GenerateInvoices).Methods("POST")
	api.HandleFunc("/invoices/{id}", h.GetInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}", h.UpdateInvoice).Methods("PUT")
	api.HandleFunc("/invoices/{id}", h.DeleteInvoice).Methods("DELETE")
	api.HandleFunc("/invoices/{id}/pay", h.PayInvoice).Methods("POST")

	// Routers
	api.HandleFunc("/routers", h.GetRouters).Methods("GET")
	api.HandleFunc("/routers", h.CreateRouter).Methods("POST")
	api.HandleFunc("/routers/{id}", h.GetRouter).Methods("GET")
	api.HandleFunc("/routers/{id}", h.UpdateRouter).Methods("PUT")
	api.HandleFunc("/routers/{id}", h.DeleteRouter).Methods("DELETE")
	api.HandleFunc("/routers/{id}/sync", h.SyncRouter).Methods("POST")
	api.HandleFunc("/routers/{id}/status", h.GetRouterStatus).Methods("GET")

	// Active PPPoE sessions
	api.HandleFunc("/sessions", h.GetActiveSessions).Methods("GET")

	// System settings
	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/settings", h.SaveSettings).Methods("POST")
	api.HandleFunc("/settings/password", h.ChangePassword).Methods("POST")

	// WebSocket
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(wsHub, w, r)
	})

	return router
}

func printBanner() {
	banner := `
  ███╗   ██╗███████╗████████╗██████╗ ██╗██╗     ██╗
  ████╗  ██║██╔════╝╚══██╔══╝██╔══██╗██║██║     ██║
  ██╔██╗ ██║█████╗     ██║   ██████╔╝██║██║     ██║
  ██║╚██╗██║██╔══╝     ██║   ██╔══██╗██║██║     ██║
  ██║ ╚████║███████╗   ██║   ██████╔╝██║███████╗███████╗
  ╚═╝  ╚═══╝╚══════╝   ╚═╝   ╚═════╝ ╚═╝╚══════╝╚══════╝

  ISP Back Office: PPPoE Subscribers, Billing, Router Sync
  Version: 1.0.0
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`
	fmt.Println(banner)
}
