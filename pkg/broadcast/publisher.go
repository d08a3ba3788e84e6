package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"officehub/utils"
)

const (
	// DefaultAddr is where the relay listens unless BROADCAST_ADDR says otherwise.
	DefaultAddr = "localhost:3001"
	// DefaultTimeout bounds how long a publish may hold up its caller.
	DefaultTimeout = 2 * time.Second
)

// Notifier is implemented by anything that can announce a change.
type Notifier interface {
	Publish(ctx context.Context, event string, payload any)
}

// Publisher posts events to the relay's ingest endpoint.
type Publisher struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   *utils.Logger
}

// NewPublisher creates a publisher for the relay at addr ("host:port" or a full URL).
// A non-positive timeout falls back to DefaultTimeout.
func NewPublisher(addr string, timeout time.Duration, logger *utils.Logger) *Publisher {
	if addr == "" {
		addr = DefaultAddr
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	return &Publisher{
		endpoint: Endpoint(addr),
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		logger:   logger,
	}
}

// Endpoint returns the ingest URL for a relay address.
func Endpoint(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr + "/broadcast"
}

// Publish sends the event and swallows any failure after logging it.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) {
	if err := p.Send(ctx, event, payload); err != nil {
		p.logger.Warn("Failed to publish broadcast event", "event", event, "error", err)
		return
	}
	p.logger.Debug("Broadcast event published", "event", event)
}

// Send performs one delivery attempt and reports the outcome. Callers in the
// request path should use Publish instead.
func (p *Publisher) Send(ctx context.Context, event string, payload any) error {
	evt, err := NewEvent(event, payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: relay responded %d", ErrMalformed, resp.StatusCode)
	}
	return nil
}

// Nop discards events.
type Nop struct{}

var (
	_ Notifier = (*Publisher)(nil)
	_ Notifier = Nop{}
)

func (Nop) Publish(context.Context, string, any) {}
