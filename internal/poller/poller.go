// Package poller periodically fetches current conditions and forwards them
// to the soundscape.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"weathersound/internal/observability"
	"weathersound/internal/weather"
)

const fetchTimeout = 30 * time.Second

// Fetcher returns current conditions for a city.
type Fetcher interface {
	Current(ctx context.Context, city string) (weather.Conditions, error)
}

// Sink receives each successful update.
type Sink interface {
	OnWeatherChange(weather.Conditions)
}

type Poller struct {
	scheduler *gocron.Scheduler
	fetcher   Fetcher
	sink      Sink
	city      string
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

func New(f Fetcher, s Sink, city string, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	return &Poller{
		scheduler: gocron.NewScheduler(time.UTC),
		fetcher:   f,
		sink:      s,
		city:      city,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start polls once immediately and then every interval.
func (p *Poller) Start() error {
	if _, err := p.scheduler.Every(p.interval).SingletonMode().Do(p.Poll); err != nil {
		return err
	}
	p.scheduler.StartAsync()
	p.logger.Info("weather poller started", "city", p.city, "interval", p.interval)
	return nil
}

// Stop cancels future polls.
func (p *Poller) Stop() {
	p.scheduler.Stop()
}

// Poll fetches once. Failures are logged and the previous scene keeps playing.
func (p *Poller) Poll() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	c, err := p.fetcher.Current(ctx, p.city)
	if err != nil {
		p.metrics.ProviderRequests.WithLabelValues("error").Inc()
		p.logger.Warn("weather fetch failed", "city", p.city, "error", err)
		return
	}
	p.metrics.ProviderRequests.WithLabelValues("success").Inc()
	p.logger.Debug("weather fetched", "city", p.city, "code", c.Code, "category", c.Category())
	p.sink.OnWeatherChange(c)
}
