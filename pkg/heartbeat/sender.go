package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrUnknownUser is returned when the presence service does not know the user.
var ErrUnknownUser = errors.New("unknown user")

const heartbeatPath = "/api/v1/presence/heartbeat"

// HTTPSender posts heartbeats to the presence service.
type HTTPSender struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPSender targets the presence service at baseURL. token, when set, is sent as a bearer token.
func NewHTTPSender(baseURL, token string) *HTTPSender {
	return &HTTPSender{
		url:    strings.TrimRight(baseURL, "/") + heartbeatPath,
		token:  token,
		client: &http.Client{},
	}
}

func (s *HTTPSender) SendHeartbeat(ctx context.Context, userID string) error {
	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("heartbeat rejected with status %d", resp.StatusCode)
	}
	return nil
}
