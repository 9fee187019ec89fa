package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func TestRateLimitMiddlewareAllowsWithinLimit(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(NewRateLimitMiddleware(2, 60))
	app.Get("/ping", func(c fiber.Ctx) error { return c.SendString("pong") })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, resp.StatusCode, http.StatusOK)
		}
		_ = resp.Body.Close()
	}
}

func TestRateLimitMiddlewareRejectsOverLimit(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(NewRateLimitMiddleware(1, 60))
	app.Get("/ping", func(c fiber.Ctx) error { return c.SendString("pong") })

	first, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", first.StatusCode, http.StatusOK)
	}

	second, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = second.Body.Close() }()

	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", second.StatusCode, http.StatusTooManyRequests)
	}
}
