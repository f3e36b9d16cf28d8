package openweather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weathersound/internal/weather"
)

const stormJSON = `{
  "weather": [{"id": 211, "main": "Thunderstorm", "description": "thunderstorm", "icon": "11n"}],
  "wind": {"speed": 7.5}
}`

func fastBackoff() Option {
	return WithBackoff(Backoff{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond})
}

func TestCurrent_MapsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Oslo,NO", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		_, _ = w.Write([]byte(stormJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "secret", WithBaseURL(srv.URL))
	got, err := c.Current(context.Background(), "Oslo,NO")
	require.NoError(t, err)
	assert.Equal(t, weather.Conditions{Code: 211, Description: "thunderstorm", IsNight: true, WindSpeed: 7.5}, got)
	assert.Equal(t, weather.Thunderstorm, got.Category())
}

func TestCurrent_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(stormJSON))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "k", WithBaseURL(srv.URL), fastBackoff())
	_, err := c.Current(context.Background(), "Oslo")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCurrent_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "bad", WithBaseURL(srv.URL), fastBackoff())
	_, err := c.Current(context.Background(), "Oslo")
	require.ErrorIs(t, err, errUnexpected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCurrent_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "k", WithBaseURL(srv.URL), fastBackoff())
	_, err := c.Current(context.Background(), "Oslo")
	require.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCurrent_NoConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"weather": [], "wind": {"speed": 1}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "k", WithBaseURL(srv.URL))
	_, err := c.Current(context.Background(), "Oslo")
	assert.ErrorIs(t, err, ErrNoConditions)
}

func TestCurrent_NoAPIKey(t *testing.T) {
	_, err := NewClient(nil, "").Current(context.Background(), "Oslo")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestCurrent_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(nil, "k", WithBaseURL("http://127.0.0.1:1")).Current(ctx, "Oslo")
	assert.ErrorIs(t, err, context.Canceled)
}
