package bus

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Shidfar/sirius/internal/config"
)

// SubjectJobEvent carries terminal job outcomes for fleet-level consumers
// (dashboards, load balancers). Publishing is fire-and-forget.
const SubjectJobEvent = "sirius.job.event"

// JobEvent is the payload published on SubjectJobEvent.
type JobEvent struct {
	SessionID    string    `json:"session_id"`
	JobID        string    `json:"job_id"`
	Outcome      string    `json:"outcome"`
	DurationSecs float64   `json:"duration_secs,omitempty"`
	SizeBytes    int       `json:"size_bytes,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Client wraps a NATS connection with the few helpers the service needs.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("siriusd"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishJobEvent announces one terminal job outcome. Failures are logged,
// never surfaced to the session.
func (c *Client) PublishJobEvent(evt JobEvent) {
	if c == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		c.log.Warn("failed to marshal job event", slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Publish(SubjectJobEvent, payload); err != nil {
		c.log.Warn("failed to publish job event", slog.String("error", err.Error()))
	}
}
