package middlewares

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func webhookApp(secret string, skew time.Duration) *fiber.App {
	app := fiber.New()
	app.Post("/hook", WebhookAuth(secret, skew), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestWebhookAuthAcceptsValidSignature(t *testing.T) {
	app := webhookApp("secret", 5*time.Minute)

	body := `{"tx_hash":"abc"}`
	ts := fmt.Sprint(time.Now().Unix())

	req := httptest.NewRequest("POST", "/hook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", SignWebhook("secret", ts, []byte(body)))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebhookAuthRejectsBadSignature(t *testing.T) {
	app := webhookApp("secret", 5*time.Minute)

	body := `{"tx_hash":"abc"}`
	ts := fmt.Sprint(time.Now().Unix())

	req := httptest.NewRequest("POST", "/hook", strings.NewReader(body))
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", SignWebhook("wrong-secret", ts, []byte(body)))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebhookAuthRejectsStaleTimestamp(t *testing.T) {
	app := webhookApp("secret", 5*time.Minute)

	body := `{}`
	ts := fmt.Sprint(time.Now().Add(-time.Hour).Unix())

	req := httptest.NewRequest("POST", "/hook", strings.NewReader(body))
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", SignWebhook("secret", ts, []byte(body)))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401 (replay window)", resp.StatusCode)
	}
}

func TestWebhookAuthRequiresHeaders(t *testing.T) {
	app := webhookApp("secret", 5*time.Minute)

	req := httptest.NewRequest("POST", "/hook", strings.NewReader("{}"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
