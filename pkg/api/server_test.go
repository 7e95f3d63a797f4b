package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/api/mocks"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/stretchr/testify/require"
)

func testAPIConfig(address string, cors config.CORSConfig) *config.APIConfig {
	return &config.APIConfig{
		Enabled:       true,
		ListenAddress: address,
		ReadTimeout:   common.Duration{Duration: 5 * time.Second},
		WriteTimeout:  common.Duration{Duration: 10 * time.Second},
		IdleTimeout:   common.Duration{Duration: 60 * time.Second},
		CORS:          cors,
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   *config.APIConfig
		validate func(t *testing.T, server *Server)
	}{
		{
			name:   "create server with basic config",
			config: testAPIConfig("localhost:8080", config.CORSConfig{}),
			validate: func(t *testing.T, server *Server) {
				t.Helper()

				require.NotNil(t, server.registry)
				require.NotNil(t, server.handler)
				require.NotNil(t, server.log)
				require.Equal(t, "localhost:8080", server.server.Addr)
				require.Equal(t, 5*time.Second, server.server.ReadTimeout)
				require.Equal(t, 10*time.Second, server.server.WriteTimeout)
				require.Equal(t, 60*time.Second, server.server.IdleTimeout)
			},
		},
		{
			name: "create server with CORS enabled",
			config: testAPIConfig(":9090", config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000", "https://example.com"},
			}),
			validate: func(t *testing.T, server *Server) {
				t.Helper()

				require.True(t, server.config.CORS.Enabled)
				require.Len(t, server.config.CORS.AllowedOrigins, 2)
				require.Equal(t, ":9090", server.server.Addr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := NewServer(tt.config, mocks.NewIndexRegistry(t), logger.NewNopLogger())
			require.NotNil(t, server)
			tt.validate(t, server)
		})
	}
}

func TestServer_Start_Disabled(t *testing.T) {
	t.Parallel()

	cfg := testAPIConfig(":8080", config.CORSConfig{})
	cfg.Enabled = false

	server := NewServer(cfg, mocks.NewIndexRegistry(t), logger.NewNopLogger())

	done := make(chan error, 1)
	go func() {
		done <- server.Start(context.Background())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start() did not return when server is disabled")
	}
}

func TestServer_Start_InvalidAddress(t *testing.T) {
	t.Parallel()

	server := NewServer(testAPIConfig("256.0.0.1:-1", config.CORSConfig{}), mocks.NewIndexRegistry(t), logger.NewNopLogger())

	err := server.Start(context.Background())
	require.ErrorContains(t, err, "failed to listen on")
}

func TestServer_Start_GracefulShutdown(t *testing.T) {
	t.Parallel()

	server := NewServer(testAPIConfig("localhost:0", config.CORSConfig{}), mocks.NewIndexRegistry(t), logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownCtxTimeout + 5*time.Second):
		t.Fatal("Server did not shutdown gracefully within timeout")
	}
}

func TestServer_Routes(t *testing.T) {
	t.Parallel()

	registry := mocks.NewIndexRegistry(t)
	registry.EXPECT().Indexes().Return([]models.IndexState{{Name: "heads", Status: models.IndexStatusRealtime}}).Maybe()
	registry.EXPECT().Index("heads").Return(models.IndexState{Name: "heads"}, true).Maybe()

	handler := NewServer(testAPIConfig(":0", config.CORSConfig{}), registry, logger.NewNopLogger()).Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/indexes", http.StatusOK},
		{http.MethodGet, "/api/v1/indexes/heads", http.StatusOK},
		{http.MethodGet, "/api/v1/indexes/heads/rollback", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/v1/indexes/heads", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
		})
	}
}

func TestServer_Middleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		corsConfig   config.CORSConfig
		origin       string
		expectOrigin string
	}{
		{
			name: "CORS middleware applied when enabled",
			corsConfig: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
			},
			origin:       "http://localhost:3000",
			expectOrigin: "http://localhost:3000",
		},
		{
			name: "origin outside the allowed list",
			corsConfig: config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000", "https://example.com"},
			},
			origin:       "https://evil.example",
			expectOrigin: "",
		},
		{
			name:         "CORS middleware not applied when disabled",
			corsConfig:   config.CORSConfig{Enabled: false},
			origin:       "http://localhost:3000",
			expectOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			registry := mocks.NewIndexRegistry(t)
			registry.EXPECT().Indexes().Return([]models.IndexState{})

			handler := NewServer(testAPIConfig(":0", tt.corsConfig), registry, logger.NewNopLogger()).Handler()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/indexes", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, tt.expectOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServer_Timeouts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		readTimeout  time.Duration
		writeTimeout time.Duration
		idleTimeout  time.Duration
	}{
		{
			name:         "default timeouts",
			readTimeout:  5 * time.Second,
			writeTimeout: 10 * time.Second,
			idleTimeout:  60 * time.Second,
		},
		{
			name:         "custom short timeouts",
			readTimeout:  1 * time.Second,
			writeTimeout: 2 * time.Second,
			idleTimeout:  30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testAPIConfig(":8080", config.CORSConfig{})
			cfg.ReadTimeout = common.Duration{Duration: tt.readTimeout}
			cfg.WriteTimeout = common.Duration{Duration: tt.writeTimeout}
			cfg.IdleTimeout = common.Duration{Duration: tt.idleTimeout}

			server := NewServer(cfg, mocks.NewIndexRegistry(t), logger.NewNopLogger())

			require.Equal(t, tt.readTimeout, server.server.ReadTimeout)
			require.Equal(t, tt.writeTimeout, server.server.WriteTimeout)
			require.Equal(t, tt.idleTimeout, server.server.IdleTimeout)
		})
	}
}
