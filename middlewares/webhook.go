package middlewares

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"bimbridge/helpers"

	"github.com/gofiber/fiber/v2"
)

// WebhookAuth verifies the shared-secret signature on chain-event deliveries:
// hex(HMAC-SHA256(secret, "<unix-ts>.<body>")) in X-Signature with the
// timestamp in X-Timestamp. Stale timestamps are rejected to stop replays.
func WebhookAuth(secret string, maxSkew time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sig := c.Get("X-Signature")
		ts := c.Get("X-Timestamp")
		if sig == "" || ts == "" {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "SIGNATURE_AND_TIMESTAMP_REQUIRED")
		}

		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_TIMESTAMP")
		}
		if skew := time.Since(time.Unix(unix, 0)); skew > maxSkew || skew < -maxSkew {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "TIMESTAMP_OUT_OF_WINDOW")
		}

		if !hmac.Equal([]byte(sig), []byte(SignWebhook(secret, ts, c.Body()))) {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_SIGNATURE")
		}
		return c.Next()
	}
}

func SignWebhook(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
