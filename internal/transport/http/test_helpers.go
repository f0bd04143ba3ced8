package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medchat/medchat-server/internal/auth"
	"github.com/medchat/medchat-server/internal/chat"
	"github.com/medchat/medchat-server/internal/config"
	"github.com/medchat/medchat-server/internal/realtime"
	"github.com/medchat/medchat-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(st *sqlite.SQLiteStore) *auth.Service {
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

// startTestServer wires the full HTTP surface against an in-memory store
// and returns the running test server plus the services tests drive
// directly.
func startTestServer(t *testing.T) (*httptest.Server, *sqlite.SQLiteStore, *auth.Service) {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(st)
	logger := zerolog.New(nil)
	registry := realtime.NewRegistry(&logger)
	chatService := chat.NewService(st, st, registry, &logger)

	server := NewServer(chatService, registry, authService, st, &config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, st, authService
}

// registerTestUser registers a user and returns their id and token.
func registerTestUser(t *testing.T, st *sqlite.SQLiteStore, authService *auth.Service, username string) (int64, string) {
	t.Helper()

	token, err := authService.Register(context.Background(), username, username+"@example.com", "password123", "")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}

	user, err := st.GetUserByEmail(context.Background(), username+"@example.com")
	if err != nil {
		t.Fatalf("look up %s: %v", username, err)
	}

	return user.ID, token
}
