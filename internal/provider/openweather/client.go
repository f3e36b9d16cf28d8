// Package openweather fetches current conditions from OpenWeatherMap and
// maps them onto weather.Conditions.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"weathersound/internal/weather"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

var (
	ErrNoAPIKey     = errors.New("openweather: api key is not configured")
	ErrNoConditions = errors.New("openweather: response has no weather conditions")
	ErrCircuitOpen  = errors.New("openweather: circuit breaker open")

	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
)

// Backoff controls retry timing.
type Backoff struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client calls the current-weather endpoint through a circuit breaker with
// exponential backoff.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	backoff Backoff
	circuit *gobreaker.CircuitBreaker
}

type Option func(*Client)

// WithBaseURL points the client at another endpoint (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

func NewClient(httpClient *http.Client, apiKey string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    httpClient,
		backoff: Backoff{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: 5,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type payload struct {
	Weather []struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Current returns the current conditions for city ("Oslo" or "Oslo,NO").
func (c *Client) Current(ctx context.Context, city string) (weather.Conditions, error) {
	if c.apiKey == "" {
		return weather.Conditions{}, ErrNoAPIKey
	}

	values := url.Values{}
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")
	values.Set("q", city)
	u := c.baseURL + "?" + values.Encode()

	body, err := c.fetch(ctx, u)
	if err != nil {
		return weather.Conditions{}, err
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return weather.Conditions{}, fmt.Errorf("decode openweather response: %w", err)
	}
	if len(p.Weather) == 0 {
		return weather.Conditions{}, ErrNoConditions
	}
	w := p.Weather[0]
	return weather.Conditions{
		Code:        w.ID,
		Description: w.Description,
		IsNight:     weather.IsNightIcon(w.Icon),
		WindSpeed:   p.Wind.Speed,
	}, nil
}

// fetch runs the request with retries. Rate limiting, server errors and
// transport failures are retried; other statuses fail at once.
func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return nil, err
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, errServerError
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		})
		if err == nil {
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if errors.Is(err, errUnexpected) || attempt >= c.backoff.MaxRetries {
			return nil, err
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}
