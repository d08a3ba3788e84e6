package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"officehub/pkg/broadcast"
	"officehub/services/presence-service/middleware"
	"officehub/services/presence-service/models"
	"officehub/services/presence-service/services"
	"officehub/services/presence-service/store"
	"officehub/utils"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testServer struct {
	router *gin.Engine
	now    *time.Time
}

func setupRouter(t *testing.T, notifier broadcast.Notifier, jwtSecret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}))

	userStore := store.NewGormStore(db)
	for _, id := range []string{"ana", "ben"} {
		require.NoError(t, userStore.Create(context.Background(), store.UserRecord{ID: id, Name: id}))
	}

	now := t0
	svc := services.NewPresenceService(userStore, notifier, utils.NewNopLogger(),
		services.WithClock(func() time.Time { return now }),
	)
	handler := NewPresenceHandler(svc, 4*time.Minute, utils.NewNopLogger())

	router := gin.New()
	router.GET("/health", HealthCheck)
	v1 := router.Group("/api/v1")
	if jwtSecret != "" {
		v1.Use(middleware.Auth(jwtSecret))
	}
	handler.Register(v1)

	return &testServer{router: router, now: &now}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestPresenceAPI_HeartbeatThenOnline(t *testing.T) {
	s := setupRouter(t, nil, "")

	w := s.do(t, http.MethodPost, "/api/v1/presence/heartbeat", gin.H{"user_id": "ana"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	hb := decode[models.HeartbeatResponse](t, w)
	assert.Equal(t, "online", hb.Status)
	assert.Equal(t, 240, hb.HeartbeatIntervalSeconds)

	w = s.do(t, http.MethodGet, "/api/v1/presence/online", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	online := decode[models.OnlineUsersResponse](t, w)
	require.Equal(t, 1, online.Count)
	assert.Equal(t, "ana", online.Users[0].UserID)

	w = s.do(t, http.MethodGet, "/api/v1/presence/status/ana", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[models.StatusResponse](t, w)
	assert.True(t, status.IsOnline)
	assert.True(t, t0.Equal(status.LastActive))

	*s.now = t0.Add(5*time.Minute + time.Second)
	w = s.do(t, http.MethodGet, "/api/v1/presence/online", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[models.OnlineUsersResponse](t, w).Count)

	w = s.do(t, http.MethodGet, "/api/v1/presence/online?staleness=10m", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.OnlineUsersResponse](t, w).Count)
}

func TestPresenceAPI_Offline(t *testing.T) {
	s := setupRouter(t, nil, "")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/presence/heartbeat", gin.H{"user_id": "ana"}, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/presence/offline", gin.H{"user_id": "ana"}, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/presence/offline", gin.H{"user_id": "ana"}, nil).Code)

	w := s.do(t, http.MethodGet, "/api/v1/presence/online", nil, nil)
	assert.Equal(t, 0, decode[models.OnlineUsersResponse](t, w).Count)
}

func TestPresenceAPI_Errors(t *testing.T) {
	s := setupRouter(t, nil, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"heartbeat unknown user", http.MethodPost, "/api/v1/presence/heartbeat", gin.H{"user_id": "ghost"}, http.StatusNotFound},
		{"offline unknown user", http.MethodPost, "/api/v1/presence/offline", gin.H{"user_id": "ghost"}, http.StatusNotFound},
		{"status unknown user", http.MethodGet, "/api/v1/presence/status/ghost", nil, http.StatusNotFound},
		{"heartbeat without user", http.MethodPost, "/api/v1/presence/heartbeat", gin.H{}, http.StatusBadRequest},
		{"heartbeat without body", http.MethodPost, "/api/v1/presence/heartbeat", nil, http.StatusBadRequest},
		{"bad staleness", http.MethodGet, "/api/v1/presence/online?staleness=soon", nil, http.StatusBadRequest},
		{"negative staleness", http.MethodGet, "/api/v1/presence/online?staleness=-1m", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestPresenceAPI_UnreachableRelayDoesNotFailHeartbeat(t *testing.T) {
	relay := httptest.NewServer(http.NotFoundHandler())
	addr := relay.URL
	relay.Close()

	s := setupRouter(t, broadcast.NewPublisher(addr, 200*time.Millisecond, utils.NewNopLogger()), "")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/presence/heartbeat", gin.H{"user_id": "ana"}, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/presence/offline", gin.H{"user_id": "ana"}, nil).Code)
}

func TestPresenceAPI_TokenIdentifiesUser(t *testing.T) {
	s := setupRouter(t, nil, "secret")

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "ben"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	auth := http.Header{"Authorization": []string{"Bearer " + token}}

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/v1/presence/heartbeat", gin.H{"user_id": "ana"}, nil).Code)

	// The token wins over the body.
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/presence/heartbeat", gin.H{"user_id": "ana"}, auth).Code)

	w := s.do(t, http.MethodGet, "/api/v1/presence/online", nil, auth)
	online := decode[models.OnlineUsersResponse](t, w)
	require.Equal(t, 1, online.Count)
	assert.Equal(t, "ben", online.Users[0].UserID)
}

func TestHealthCheck(t *testing.T) {
	s := setupRouter(t, nil, "")

	w := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "presence-service", decode[HealthResponse](t, w).Service)
}
