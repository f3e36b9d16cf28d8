package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weathersound/internal/observability"
	"weathersound/internal/soundscape"
	"weathersound/internal/weather"
)

// fakeController applies every call synchronously.
type fakeController struct {
	state   soundscape.State
	last    weather.Conditions
	resumed int
	syncErr error
}

func (f *fakeController) State() soundscape.State { return f.state }
func (f *fakeController) OnWeatherChange(c weather.Conditions) {
	f.last = c
	f.state.Scene = soundscape.Scene(c.Category())
}
func (f *fakeController) ToggleEnabled() { f.state.Enabled = !f.state.Enabled }
func (f *fakeController) SetVolume(v float64) { f.state.Volume = v }
func (f *fakeController) ResumeOnUserGesture() { f.resumed++ }
func (f *fakeController) Sync(context.Context) error { return f.syncErr }

func newTestApp(ctrl Controller) *fiber.App {
	return NewApp(ctrl, nil, observability.Discard())
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestGetSound(t *testing.T) {
	ctrl := &fakeController{state: soundscape.State{Enabled: true, Volume: 0.5, Scene: soundscape.SceneNone}}
	resp, body := do(t, newTestApp(ctrl), http.MethodGet, "/api/v1/sound", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["enabled"])
	assert.InDelta(t, 0.5, body["volume"], 0)
	assert.Equal(t, "none", body["scene"])
}

func TestToggle(t *testing.T) {
	ctrl := &fakeController{state: soundscape.State{Enabled: true}}
	resp, body := do(t, newTestApp(ctrl), http.MethodPost, "/api/v1/sound/toggle", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["enabled"])
}

func TestSetVolume(t *testing.T) {
	ctrl := &fakeController{}
	app := newTestApp(ctrl)

	resp, body := do(t, app, http.MethodPut, "/api/v1/sound/volume", `{"volume": 0.25}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.25, body["volume"], 1e-9)

	resp, _ = do(t, app, http.MethodPut, "/api/v1/sound/volume", `{"volume": 0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "zero is a valid volume")
}

func TestSetVolume_Validation(t *testing.T) {
	app := newTestApp(&fakeController{})
	for _, body := range []string{`{"volume": 1.5}`, `{"volume": -0.1}`, `{}`, `not json`} {
		resp, out := do(t, app, http.MethodPut, "/api/v1/sound/volume", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, true, out["error"])
	}
}

func TestResume(t *testing.T) {
	ctrl := &fakeController{}
	resp, _ := do(t, newTestApp(ctrl), http.MethodPost, "/api/v1/sound/resume", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ctrl.resumed)
}

func TestPostWeather(t *testing.T) {
	ctrl := &fakeController{}
	resp, body := do(t, newTestApp(ctrl), http.MethodPost, "/api/v1/weather",
		`{"conditionCode": 211, "description": "thunderstorm", "isNight": false, "windSpeed": 4.2}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "thunderstorm", body["category"])
	assert.Equal(t, weather.Conditions{Code: 211, Description: "thunderstorm", WindSpeed: 4.2}, ctrl.last)
}

func TestPostWeather_Validation(t *testing.T) {
	app := newTestApp(&fakeController{})
	resp, _ := do(t, app, http.MethodPost, "/api/v1/weather", `{"conditionCode": 5000}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, app, http.MethodPost, "/api/v1/weather", `{"conditionCode": 500, "windSpeed": -2}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncTimeoutIsServiceUnavailable(t *testing.T) {
	ctrl := &fakeController{syncErr: context.DeadlineExceeded}
	resp, _ := do(t, newTestApp(ctrl), http.MethodPost, "/api/v1/sound/toggle", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsForTesting()
	reg.MustRegister(m.Volume)
	m.Volume.Set(0.5)

	app := NewApp(&fakeController{}, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), observability.Discard())

	resp, body := do(t, app, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mresp, err := app.Test(req)
	require.NoError(t, err)
	defer mresp.Body.Close()
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "weathersound_master_volume 0.5")
}
