package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weathersound/internal/observability"
	"weathersound/internal/weather"
)

type stubFetcher struct {
	cond weather.Conditions
	err  error
	city string
}

func (s *stubFetcher) Current(_ context.Context, city string) (weather.Conditions, error) {
	s.city = city
	return s.cond, s.err
}

type recordingSink struct {
	mu  sync.Mutex
	got []weather.Conditions
	ch  chan struct{}
}

func newSink() *recordingSink { return &recordingSink{ch: make(chan struct{}, 8)} }

func (r *recordingSink) OnWeatherChange(c weather.Conditions) {
	r.mu.Lock()
	r.got = append(r.got, c)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recordingSink) updates() []weather.Conditions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]weather.Conditions(nil), r.got...)
}

func TestPoll_ForwardsConditions(t *testing.T) {
	f := &stubFetcher{cond: weather.Conditions{Code: 500, WindSpeed: 3}}
	sink := newSink()
	m := observability.NewMetricsForTesting()
	p := New(f, sink, "Bergen", time.Minute, observability.Discard(), m)

	p.Poll()
	assert.Equal(t, "Bergen", f.city)
	assert.Equal(t, []weather.Conditions{{Code: 500, WindSpeed: 3}}, sink.updates())
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("success")), 0)
}

func TestPoll_ErrorKeepsScene(t *testing.T) {
	f := &stubFetcher{err: errors.New("timeout")}
	sink := newSink()
	m := observability.NewMetricsForTesting()
	p := New(f, sink, "Bergen", time.Minute, observability.Discard(), m)

	p.Poll()
	assert.Empty(t, sink.updates())
	assert.InDelta(t, 1, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("error")), 0)
}

func TestStart_PollsImmediately(t *testing.T) {
	f := &stubFetcher{cond: weather.Conditions{Code: 800}}
	sink := newSink()
	p := New(f, sink, "Bergen", time.Hour, observability.Discard(), observability.NewMetricsForTesting())

	require.NoError(t, p.Start())
	defer p.Stop()

	select {
	case <-sink.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no poll after start")
	}
	assert.Equal(t, 800, sink.updates()[0].Code)
}
