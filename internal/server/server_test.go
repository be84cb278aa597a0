package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(":0", http.NotFoundHandler(), Timeouts{Write: time.Second})

	assert.Equal(t, 10*time.Second, srv.ReadTimeout)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}

func TestRun(t *testing.T) {
	t.Run("cancel shuts down cleanly", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		srv := New("127.0.0.1:0", http.NotFoundHandler(), Timeouts{Shutdown: time.Second})

		done := make(chan error, 1)
		go func() { done <- Run(ctx, srv, Timeouts{Shutdown: time.Second}) }()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	})

	t.Run("listen failure is returned", func(t *testing.T) {
		srv := New("127.0.0.1:-1", http.NotFoundHandler(), Timeouts{})
		err := Run(context.Background(), srv, Timeouts{Shutdown: time.Second})
		require.Error(t, err)
	})
}
