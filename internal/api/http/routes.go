package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/dmi-observation-cache/internal/observations"
	"github.com/i474232898/dmi-observation-cache/internal/reconciler"
)

var validate = validator.New()

// StatusSource exposes reconciler progress to the status endpoint.
type StatusSource interface {
	Stats() reconciler.Stats
}

// RegisterRoutes wires the read-only cache endpoints into the Fiber app.
// Handlers never write to the day store.
func RegisterRoutes(app *fiber.App, service *observations.Service, status StatusSource) {
	v1 := app.Group("/api/v1")

	v1.Get("/cache/range", func(c *fiber.Ctx) error {
		r, ok, err := service.CachedDateRange()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to scan cache")
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no cached data")
		}
		return c.JSON(r)
	})

	v1.Get("/cache/defaults", func(c *fiber.Ctx) error {
		return c.JSON(service.DefaultPickerRange())
	})

	v1.Get("/cache/coverage", func(c *fiber.Ctx) error {
		var q coverageQuery
		if err := q.bind(c, service); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		cov, err := service.Coverage(q.window)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compute coverage")
		}
		return c.JSON(cov)
	})

	v1.Get("/cache/status", func(c *fiber.Ctx) error {
		window, enabled := service.Window()
		body := fiber.Map{
			"enabled": enabled,
			"stats":   status.Stats(),
		}
		if enabled {
			body["window"] = window
		}
		return c.JSON(body)
	})

	v1.Get("/observations/:date", func(c *fiber.Ctx) error {
		q := dateQuery{Date: c.Params("date")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		date, err := observations.ParseDate(q.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		day, err := service.Day(date)
		if err != nil {
			if errors.Is(err, observations.ErrDayNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cached observations for requested date")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read cached observations")
		}

		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(day.Payload)
	})
}

// dateQuery validates a single YYYY-MM-DD value.
type dateQuery struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

// coverageQuery holds the optional from/to bounds of the coverage endpoint.
type coverageQuery struct {
	From string `validate:"omitempty,datetime=2006-01-02"`
	To   string `validate:"omitempty,datetime=2006-01-02"`

	window observations.DateRange
}

// bind fills the window, defaulting missing bounds from the reconciliation
// window (or the picker defaults when caching is disabled).
func (q *coverageQuery) bind(c *fiber.Ctx, service *observations.Service) error {
	q.From = c.Query("from")
	q.To = c.Query("to")
	if err := validate.Struct(q); err != nil {
		return errors.New("from and to must be YYYY-MM-DD")
	}

	window, ok := service.Window()
	if !ok {
		window = service.DefaultPickerRange()
	}

	if q.From != "" {
		d, err := observations.ParseDate(q.From)
		if err != nil {
			return err
		}
		window.From = d
	}
	if q.To != "" {
		d, err := observations.ParseDate(q.To)
		if err != nil {
			return err
		}
		window.To = d
	}
	if window.To.Before(window.From) {
		return errors.New("to must not be before from")
	}
	q.window = window
	return nil
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
