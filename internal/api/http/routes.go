package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"weathersound/internal/soundscape"
	"weathersound/internal/weather"
)

var validate = validator.New()

// syncTimeout bounds how long a handler waits for the control loop.
const syncTimeout = 2 * time.Second

// Controller is the soundscape surface the UI drives.
type Controller interface {
	State() soundscape.State
	OnWeatherChange(weather.Conditions)
	ToggleEnabled()
	SetVolume(v float64)
	ResumeOnUserGesture()
	Sync(ctx context.Context) error
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. metrics may be
// nil to leave /metrics unregistered.
func RegisterRoutes(app *fiber.App, ctrl Controller, metrics http.Handler) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/sound", func(c *fiber.Ctx) error {
		return c.JSON(ctrl.State())
	})

	v1.Post("/sound/toggle", func(c *fiber.Ctx) error {
		ctrl.ToggleEnabled()
		return respondState(c, ctrl)
	})

	v1.Put("/sound/volume", func(c *fiber.Ctx) error {
		var req volumeRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		ctrl.SetVolume(*req.Volume)
		return respondState(c, ctrl)
	})

	v1.Post("/sound/resume", func(c *fiber.Ctx) error {
		ctrl.ResumeOnUserGesture()
		return respondState(c, ctrl)
	})

	v1.Post("/weather", func(c *fiber.Ctx) error {
		var req weatherRequest
		if err := bind(c, &req); err != nil {
			return err
		}
		cond := req.toConditions()
		ctrl.OnWeatherChange(cond)
		if err := syncLoop(c, ctrl); err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"category": cond.Category(),
			"state":    ctrl.State(),
		})
	})
}

type volumeRequest struct {
	Volume *float64 `json:"volume" validate:"required,gte=0,lte=1"`
}

type weatherRequest struct {
	ConditionCode int     `json:"conditionCode" validate:"gte=0,lte=999"`
	Description   string  `json:"description" validate:"max=200"`
	IsNight       bool    `json:"isNight"`
	WindSpeed     float64 `json:"windSpeed" validate:"gte=0"`
}

func (r weatherRequest) toConditions() weather.Conditions {
	return weather.Conditions{
		Code:        r.ConditionCode,
		Description: r.Description,
		IsNight:     r.IsNight,
		WindSpeed:   r.WindSpeed,
	}
}

func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func syncLoop(c *fiber.Ctx, ctrl Controller) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), syncTimeout)
	defer cancel()
	if err := ctrl.Sync(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "sound engine busy")
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return nil
}

func respondState(c *fiber.Ctx, ctrl Controller) error {
	if err := syncLoop(c, ctrl); err != nil {
		return err
	}
	return c.JSON(ctrl.State())
}
