// Package mikrotik talks the RouterOS API to a single managed router.
//
// Reads fail open: when the router is unreachable or the driver is
// disabled, the client logs the condition and serves deterministic
// synthetic data so the dashboard keeps working through an outage. Writes
// never fall back; a failed write surfaces to the caller.
package mikrotik

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-netbill/internal/models"

	"github.com/go-routeros/routeros/v3"
	"github.com/rs/zerolog"
)

const (
	responseTTL    = 30 * time.Second
	defaultPort    = 8728
	defaultTimeout = 8 * time.Second
)

// ErrDriverUnavailable reports that no RouterOS driver is configured, as
// opposed to a driver that tried and failed.
var ErrDriverUnavailable = errors.New("routeros driver not available")

// Source tags which data source answered a read.
type Source string

const (
	SourceLive      Source = "live"
	SourceSynthetic Source = "synthetic"
)

// ConnStatus is the tri-state connection report: no driver at all, driver
// present but unreachable, or connected.
type ConnStatus struct {
	Connected    bool   `json:"connected"`
	UsingRealAPI bool   `json:"usingRealApi"`
	Message      string `json:"message"`
}

// conn is the wire surface of one RouterOS API connection.
type conn interface {
	Run(sentence ...string) (*routeros.Reply, error)
	Close() error
}

type dialFunc func(address, username, password string, timeout time.Duration) (conn, error)

func dialRouterOS(address, username, password string, timeout time.Duration) (conn, error) {
	return routeros.DialTimeout(address, username, password, timeout)
}

// Option configures a Client.
type Option func(*Client)

// WithPassword supplies the plaintext API password. The stored router
// credential is bcrypt-hashed at rest, so callers that hold the plaintext
// (router creation, connection tests) must pass it here for a live login
// to succeed.
func WithPassword(password string) Option {
	return func(c *Client) { c.password = password }
}

// WithTimeout overrides the connection/request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithPort overrides the API port.
func WithPort(port int) Option {
	return func(c *Client) {
		if port > 0 {
			c.port = port
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Disabled removes the RouterOS driver entirely: reads serve synthetic
// data, writes and connection tests report ErrDriverUnavailable.
func Disabled() Option {
	return func(c *Client) { c.dial = nil }
}

func withDialer(dial dialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// Client executes commands against one RouterDevice. The first live call
// pays the connection cost; subsequent calls reuse the connection. The
// cache and connection are private to this instance.
type Client struct {
	router   *models.RouterDevice
	password string
	port     int
	timeout  time.Duration
	dial     dialFunc
	log      zerolog.Logger
	cache    *responseCache

	mu         sync.Mutex
	conn       conn
	lastSource Source
}

// New creates a client for one router.
func New(router *models.RouterDevice, opts ...Option) *Client {
	c := &Client{
		router:     router,
		port:       defaultPort,
		timeout:    defaultTimeout,
		dial:       dialRouterOS,
		log:        zerolog.Nop(),
		cache:      newResponseCache(),
		lastSource: SourceLive,
	}
	if router.APIPort > 0 {
		c.port = router.APIPort
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "mikrotik").Str("router", router.Host).Logger()
	return c
}

// Execute runs a command with key=value parameters and returns the decoded
// record list. Reads consult the cache first and fall back to synthetic
// data on any live failure; writes always go to the device, surface errors,
// and invalidate the whole cache on success.
func (c *Client) Execute(command string, params map[string]string) ([]map[string]string, error) {
	if isWriteCommand(command) {
		rows, err := c.runLive(command, params)
		if err != nil {
			return nil, fmt.Errorf("device write %s: %w", command, err)
		}
		c.cache.clear()
		return rows, nil
	}

	key := cacheKey(command, params)
	if rows, ok := c.cache.get(key); ok {
		return rows, nil
	}

	rows, err := c.runLive(command, params)
	source := SourceLive
	if err != nil {
		if errors.Is(err, ErrDriverUnavailable) {
			c.log.Debug().Str("command", command).Msg("driver disabled, serving synthetic data")
		} else {
			c.log.Warn().Err(err).Str("command", command).Msg("live call failed, serving synthetic data")
		}
		rows = mockResponse(command)
		source = SourceSynthetic
	}

	c.mu.Lock()
	c.lastSource = source
	c.mu.Unlock()

	c.cache.put(key, rows, responseTTL)
	return rows, nil
}

func (c *Client) runLive(command string, params map[string]string) ([]map[string]string, error) {
	cn, err := c.connection()
	if err != nil {
		return nil, err
	}

	reply, err := cn.Run(buildSentence(command, params)...)
	if err != nil {
		// Drop the connection so the next call redials.
		c.dropConnection()
		return nil, err
	}

	rows := make([]map[string]string, 0, len(reply.Re))
	for _, re := range reply.Re {
		rows = append(rows, re.Map)
	}
	return rows, nil
}

func (c *Client) connection() (conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dial == nil {
		return nil, ErrDriverUnavailable
	}
	if c.conn != nil {
		return c.conn, nil
	}

	address := net.JoinHostPort(c.router.Host, strconv.Itoa(c.port))
	password := c.password
	if password == "" {
		password = c.router.APIPassword
	}

	cn, err := c.dial(address, c.router.APIUser, password, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to router %s: %w", address, err)
	}
	c.conn = cn
	return cn, nil
}

func (c *Client) dropConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// buildSentence converts command+params into RouterOS sentence words, with
// parameters in sorted key order for determinism.
func buildSentence(command string, params map[string]string) []string {
	sentence := []string{command}
	for _, key := range sortedKeys(params) {
		sentence = append(sentence, "="+key+"="+params[key])
	}
	return sentence
}

func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isWriteCommand(command string) bool {
	switch {
	case strings.HasSuffix(command, "/add"),
		strings.HasSuffix(command, "/set"),
		strings.HasSuffix(command, "/remove"),
		strings.HasSuffix(command, "/enable"),
		strings.HasSuffix(command, "/disable"):
		return true
	}
	return false
}

// GetSubscribers returns the router's PPPoE secret table.
func (c *Client) GetSubscribers() ([]models.Subscriber, error) {
	rows, err := c.Execute("/ppp/secret/print", nil)
	if err != nil {
		return nil, err
	}

	subscribers := make([]models.Subscriber, 0, len(rows))
	for _, row := range rows {
		subscribers = append(subscribers, models.Subscriber{
			ID:            row[".id"],
			Name:          row["name"],
			Password:      row["password"],
			Service:       row["service"],
			Profile:       row["profile"],
			RemoteAddress: row["remote-address"],
			Disabled:      parseBool(row["disabled"]),
			Comment:       row["comment"],
		})
	}
	return subscribers, nil
}

// GetActiveSessions returns the router's live PPPoE connections. Byte and
// packet counters arrive as strings; absent or malformed values become 0.
func (c *Client) GetActiveSessions() ([]models.ActiveSession, error) {
	rows, err := c.Execute("/ppp/active/print", nil)
	if err != nil {
		return nil, err
	}

	sessions := make([]models.ActiveSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, models.ActiveSession{
			ID:         row[".id"],
			Name:       row["name"],
			Service:    row["service"],
			CallerID:   row["caller-id"],
			Address:    row["address"],
			Uptime:     row["uptime"],
			BytesIn:    parseInt64(row["bytes-in"]),
			BytesOut:   parseInt64(row["bytes-out"]),
			PacketsIn:  parseInt64(row["packets-in"]),
			PacketsOut: parseInt64(row["packets-out"]),
		})
	}
	return sessions, nil
}

// AddSubscriber creates a PPPoE secret.
func (c *Client) AddSubscriber(sub models.Subscriber) error {
	params := map[string]string{
		"name":     sub.Name,
		"password": sub.Password,
		"service":  sub.Service,
		"profile":  sub.Profile,
		"disabled": boolWord(sub.Disabled),
	}
	if sub.RemoteAddress != "" {
		params["remote-address"] = sub.RemoteAddress
	}
	if sub.Comment != "" {
		params["comment"] = sub.Comment
	}
	_, err := c.Execute("/ppp/secret/add", params)
	return err
}

// UpdateSubscriber applies a partial update to a PPPoE secret; only fields
// present in the update are sent.
func (c *Client) UpdateSubscriber(id string, upd models.SubscriberUpdate) error {
	params := map[string]string{".id": id}
	if upd.Name != nil {
		params["name"] = *upd.Name
	}
	if upd.Password != nil {
		params["password"] = *upd.Password
	}
	if upd.Service != nil {
		params["service"] = *upd.Service
	}
	if upd.Profile != nil {
		params["profile"] = *upd.Profile
	}
	if upd.RemoteAddress != nil {
		params["remote-address"] = *upd.RemoteAddress
	}
	if upd.Disabled != nil {
		params["disabled"] = boolWord(*upd.Disabled)
	}
	if upd.Comment != nil {
		params["comment"] = *upd.Comment
	}
	_, err := c.Execute("/ppp/secret/set", params)
	return err
}

// RemoveSubscriber deletes a PPPoE secret.
func (c *Client) RemoveSubscriber(id string) error {
	_, err := c.Execute("/ppp/secret/remove", map[string]string{".id": id})
	return err
}

// DisconnectSession drops an active PPPoE connection.
func (c *Client) DisconnectSession(id string) error {
	_, err := c.Execute("/ppp/active/remove", map[string]string{".id": id})
	return err
}

// TestConnection reports whether a live round-trip succeeds.
func (c *Client) TestConnection() bool {
	return c.ConnectionStatus().Connected
}

// ConnectionStatus performs a lightweight device query and reports the
// tri-state result, so callers can tell "never tried" from "tried and
// failed". It bypasses the cache.
func (c *Client) ConnectionStatus() ConnStatus {
	if c.dial == nil {
		return ConnStatus{Message: "RouterOS driver disabled; serving synthetic data"}
	}
	if _, err := c.runLive("/system/resource/print", nil); err != nil {
		return ConnStatus{UsingRealAPI: true, Message: err.Error()}
	}
	return ConnStatus{Connected: true, UsingRealAPI: true, Message: "connected"}
}

// LastSource reports which source answered the most recent uncached read.
func (c *Client) LastSource() Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSource
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// Close releases the connection, if any.
func (c *Client) Close() {
	c.dropConnection()
}

func parseBool(s string) bool {
	return s == "true" || s == "yes"
}

func boolWord(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
