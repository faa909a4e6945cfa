package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/throne/server/api/middleware"
)

func TestServer_StartServesAndStops(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{ListenAddr: "127.0.0.1:0"}, zerolog.Nop())
	s.Use(middleware.RequestID())
	s.Router.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"pong": "ok"})
	}).Methods(http.MethodGet)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not bind")
	}

	res, err := http.Get("http://" + s.Addr().String() + "/ping")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Header.Get(middleware.RequestIDHeader))
	require.NoError(t, res.Body.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_UnmatchedRoutesUseErrorEnvelope(t *testing.T) {
	t.Parallel()

	s := NewServer(DefaultConfig(), zerolog.Nop())
	s.Router.HandleFunc("/only-get", func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "not_found", body.Error.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/only-get", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	s := NewServer(DefaultConfig(), zerolog.Nop())
	s.Router.HandleFunc("/x", func(http.ResponseWriter, *http.Request) {}).Methods(http.MethodPost, http.MethodOptions)
	s.EnableCORS([]string{"https://throne.example"})

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://throne.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Signature")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "https://throne.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ListenAddr = " "
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ReadTimeout = -time.Second
	require.Error(t, cfg.Validate())

	filled := Config{ListenAddr: ":9000"}.withDefaults()
	require.Equal(t, ":9000", filled.ListenAddr)
	require.Equal(t, DefaultConfig().WriteTimeout, filled.WriteTimeout)
}
