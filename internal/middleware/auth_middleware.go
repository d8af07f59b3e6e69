package middleware

import (
	"strings"

	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	AuthorizationHeader = "Authorization"
	BearerSchema        = "Bearer "
	UserIDKey           = "userID"   // fiber.Ctx locals key for the token's user id
	UsernameKey         = "username" // fiber.Ctx locals key for the token's username
	RoleKey             = "role"     // fiber.Ctx locals key for the token's role
)

// Protected rejects requests without a valid bearer token and stores the
// caller's identity in the context locals.
func Protected(authService service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(AuthorizationHeader)
		if authHeader == "" {
			return unauthorized(c, "MISSING_AUTH_HEADER", "Authorization header is missing")
		}
		if !strings.HasPrefix(authHeader, BearerSchema) {
			return unauthorized(c, "INVALID_AUTH_SCHEME", "Authorization scheme is not Bearer")
		}

		tokenString := strings.TrimPrefix(authHeader, BearerSchema)
		if tokenString == "" {
			return unauthorized(c, "EMPTY_TOKEN", "Token is empty")
		}

		claims, err := authService.ValidateJWT(c.Context(), tokenString)
		if err != nil {
			logger.Get().Debug("Rejected bearer token", zap.Error(err), zap.String("path", c.Path()))
			return unauthorized(c, "INVALID_TOKEN", err.Error())
		}

		c.Locals(UserIDKey, claims.UserID)
		c.Locals(UsernameKey, claims.Username)
		c.Locals(RoleKey, claims.Role)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Code:    code,
		Message: message,
		Status:  fiber.StatusUnauthorized,
	})
}

// Role returns the authenticated caller's role, or "" on unprotected routes.
func Role(c *fiber.Ctx) string {
	role, _ := c.Locals(RoleKey).(string)
	return role
}

// Username returns the authenticated username, or "" on unprotected routes.
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(UsernameKey).(string)
	return name
}
