package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"officehub/utils"
)

type department struct {
	Name string `json:"name"`
}

// createDepartment stands in for a dashboard write that announces itself.
func createDepartment(ctx context.Context, n Notifier, name string) (*department, error) {
	d := &department{Name: name}
	n.Publish(ctx, "department.created", d)
	return d, nil
}

type recordingRelay struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingRelay) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/broadcast", req.URL.Path)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

		var evt Event
		if err := json.NewDecoder(req.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.events = append(r.events, evt)
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (r *recordingRelay) received() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"localhost:3001", "http://localhost:3001/broadcast"},
		{"http://relay:3001", "http://relay:3001/broadcast"},
		{"https://relay.example.com/", "https://relay.example.com/broadcast"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, Endpoint(tt.addr))
		})
	}
}

func TestPublisher_DeliversEnvelope(t *testing.T) {
	relay := &recordingRelay{}
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	p := NewPublisher(srv.URL, time.Second, utils.NewNopLogger())
	p.Publish(context.Background(), "department.created", map[string]string{"name": "Finance"})

	events := relay.received()
	require.Len(t, events, 1)
	assert.Equal(t, "department.created", events[0].Event)
	assert.JSONEq(t, `{"name":"Finance"}`, string(events[0].Data))
}

func TestPublisher_UnreachableRelayDoesNotFailCaller(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	p := NewPublisher(addr, time.Second, utils.NewNopLogger())

	var (
		d   *department
		err error
	)
	assert.NotPanics(t, func() {
		d, err = createDepartment(context.Background(), p, "Finance")
	})
	require.NoError(t, err)
	assert.Equal(t, "Finance", d.Name)

	assert.Error(t, p.Send(context.Background(), "department.created", d))
}

func TestPublisher_SlowRelayIsBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewPublisher(srv.URL, 100*time.Millisecond, utils.NewNopLogger())

	start := time.Now()
	p.Publish(context.Background(), "shift.updated", nil)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublisher_RejectedEventIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPublisher(srv.URL, time.Second, utils.NewNopLogger())

	err := p.Send(context.Background(), "report.approved", map[string]int{"id": 7})
	assert.True(t, errors.Is(err, ErrMalformed))

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), "report.approved", map[string]int{"id": 7})
	})
}

func TestPublisher_EmptyEventNameIsNotSent(t *testing.T) {
	relay := &recordingRelay{}
	srv := httptest.NewServer(relay.handler(t))
	defer srv.Close()

	p := NewPublisher(srv.URL, time.Second, utils.NewNopLogger())

	err := p.Send(context.Background(), "  ", "x")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, relay.received())
}

func TestNewPublisher_Defaults(t *testing.T) {
	p := NewPublisher("", 0, nil)
	assert.Equal(t, "http://localhost:3001/broadcast", p.endpoint)
	assert.Equal(t, DefaultTimeout, p.timeout)
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name     string
		evt      Event
		wantErr  bool
		wantData string
	}{
		{name: "valid", evt: Event{Event: "user.created", Data: json.RawMessage(`{"id":1}`)}, wantData: `{"id":1}`},
		{name: "missing data becomes null", evt: Event{Event: "ping"}, wantData: "null"},
		{name: "blank name", evt: Event{Event: " ", Data: json.RawMessage(`1`)}, wantErr: true},
		{name: "invalid data", evt: Event{Event: "x", Data: json.RawMessage(`{`)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evt.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, string(tt.evt.Data))
		})
	}
}

func TestNewEvent_UnserializablePayload(t *testing.T) {
	_, err := NewEvent("bad", make(chan int))
	assert.ErrorIs(t, err, ErrMalformed)
}
