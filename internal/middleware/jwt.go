package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tokenledger/internal/auth"
	"github.com/congo-pay/tokenledger/internal/ledger"
)

const callerAccountLocal = "caller_account"

// CallerAuth resolves the calling account from an HS256 bearer token.
func CallerAuth(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		account, err := auth.ParseCaller(token, key, time.Now())
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(callerAccountLocal, account)
		return c.Next()
	}
}

// CallerAccount returns the account resolved by CallerAuth.
func CallerAccount(c *fiber.Ctx) (ledger.AccountID, bool) {
	account, ok := c.Locals(callerAccountLocal).(ledger.AccountID)
	return account, ok
}
