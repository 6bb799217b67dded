package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Client represents a Telegram bot client
type Client struct {
	Token  string
	ChatID string
}

// New creates a new Telegram client
func New(token, chatID string) *Client {
	return &Client{
		Token:  token,
		ChatID: chatID,
	}
}

// Message represents a Telegram message payload
type Message struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to Telegram
func (c *Client) SendMessage(message string) error {
	if c.Token == "" || c.ChatID == "" {
		return fmt.Errorf("telegram token or chat_id not configured")
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.Token)

	payload := Message{
		ChatID:    c.ChatID,
		Text:      message,
		ParseMode: "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// SendOverdueAlert notifies operators that a customer was suspended for an
// overdue invoice
func (c *Client) SendOverdueAlert(username string, amount float64, dueDate time.Time) error {
	text := fmt.Sprintf(
		"<b>Overdue Invoice</b>\n\n"+
			"<b>Customer:</b> %s\n"+
			"<b>Amount:</b> %.2f\n"+
			"<b>Due Date:</b> %s\n\n"+
			"Account suspended and PPPoE secret disabled.",
		username,
		amount,
		dueDate.Format("2006-01-02"),
	)
	return c.SendMessage(text)
}

// SendSweepSummary notifies operators after an overdue sweep
func (c *Client) SendSweepSummary(marked, suspended int) error {
	hostname, _ := os.Hostname()
	now := time.Now().Format("2006-01-02 15:04:05")

	text := fmt.Sprintf(
		"<b>Billing Sweep Complete</b>\n\n"+
			"<b>Server:</b> %s\n"+
			"<b>Time:</b> %s\n"+
			"<b>Invoices marked overdue:</b> %d\n"+
			"<b>Customers suspended:</b> %d",
		hostname,
		now,
		marked,
		suspended,
	)
	return c.SendMessage(text)
}

// SendSyncAlert notifies operators about a router sync outcome
func (c *Client) SendSyncAlert(routerLabel string, synced, created, updated int) error {
	text := fmt.Sprintf(
		"<b>Router Sync Complete</b>\n\n"+
			"<b>Router:</b> %s\n"+
			"<b>Subscribers:</b> %d\n"+
			"<b>Created:</b> %d\n"+
			"<b>Updated:</b> %d",
		routerLabel,
		synced,
		created,
		updated,
	)
	return c.SendMessage(text)
}
