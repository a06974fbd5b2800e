package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AccountHeader carries the caller identity established by the upstream
// authentication gateway. The engine trusts it as given.
const AccountHeader = "X-Account-ID"

const accountKey = "account_id"

// RequireAccount rejects requests without a caller identity and stores the
// identity for handlers.
func RequireAccount() fiber.Handler {
	return func(c *fiber.Ctx) error {
		account := strings.TrimSpace(c.Get(AccountHeader))
		if account == "" {
			log.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Str("ip", c.IP()).
				Msg("Request rejected: missing caller identity")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"reason": "unauthenticated",
				"error":  "Missing " + AccountHeader + " header",
			})
		}
		c.Locals(accountKey, account)
		return c.Next()
	}
}

// AccountID returns the identity stored by RequireAccount, or "".
func AccountID(c *fiber.Ctx) string {
	account, _ := c.Locals(accountKey).(string)
	return account
}
