package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miuchi-chat/miuchi/internal/gateway"
)

func TestOnlineHandlerListReflectsRegistry(t *testing.T) {
	t.Parallel()

	registry := gateway.NewRegistry(5)
	h := NewOnlineHandler(registry, nil, zerolog.Nop())

	app := fiber.New()
	app.Get("/api/v1/online", h.List)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/online", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	var env struct {
		Data []onlineUserView `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decoding JSON: %v\nraw: %s", err, body)
	}
	if len(env.Data) != 0 {
		t.Errorf("data = %+v, want empty snapshot for an empty registry", env.Data)
	}
}

func TestOnlineHandlerListWithoutCacheStillServes(t *testing.T) {
	t.Parallel()

	registry := gateway.NewRegistry(5)
	h := NewOnlineHandler(registry, nil, zerolog.Nop())

	if _, ok := h.readCache(nil); ok {
		t.Error("readCache() ok = true with nil cache client, want false")
	}

	h.writeCache(nil, []onlineUserView{{UserID: uuid.New().String(), ConnectedAt: time.Now().Format(time.RFC3339Nano)}})
}
