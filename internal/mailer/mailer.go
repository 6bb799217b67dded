package mailer

import (
	"fmt"
	"net/smtp"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer handles email sending
type Mailer struct {
	config Config
}

// New creates a new Mailer
func New(config Config) *Mailer {
	return &Mailer{config: config}
}

// Send sends an email
func (m *Mailer) Send(to string, subject string, body string) error {
	// If no config, just log (mock mode)
	if m.config.Host == "" {
		fmt.Printf("[MOCK MAIL] To: %s | Subject: %s | Body length: %d\n", to, subject, len(body))
		return nil
	}

	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", to, subject, body))

	return smtp.SendMail(addr, auth, m.config.From, []string{to}, msg)
}

// GenerateOverdueHTML generates HTML for the overdue-invoice notice
func GenerateOverdueHTML(username, amount, dueDate string) string {
	return fmt.Sprintf(`
		<html>
		<body>
			<h2>Overdue Invoice Notice</h2>
			<p>Dear %s,</p>
			<p>Your invoice of <strong>%s</strong> was due on <strong>%s</strong> and is now overdue.</p>
			<p>Your connection has been suspended. Service is restored automatically once the outstanding balance is settled.</p>
			<br>
			<p>Thank you,<br>NetBill Team</p>
		</body>
		</html>
	`, username, amount, dueDate)
}

// GeneratePaymentReceiptHTML generates HTML for the payment receipt
func GeneratePaymentReceiptHTML(username, amount, paidDate string) string {
	return fmt.Sprintf(`
		<html>
		<body>
			<h2>Payment Receipt</h2>
			<p>Dear %s,</p>
			<p>We have received your payment of <strong>%s</strong> on %s.</p>
			<p>Your transaction has been completed successfully.</p>
			<br>
			<p>Thank you,<br>NetBill Team</p>
		</body>
		</html>
	`, username, amount, paidDate)
}
