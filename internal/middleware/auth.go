package middleware

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/models"
	"github.com/SHAH-1846/TRIPFLEET-V1-sub001/internal/storage"
)

const actorKey = "actor"

// RequireAuth resolves the caller from a Bearer JWT and stores the resulting
// actor in the request context. The token only identifies the user; the role
// and active flag always come from the user record, so a stale or doctored
// role claim never grants anything.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			log.Println("ERROR: JWT_SECRET not set")
			return c.Status(500).JSON(fiber.Map{
				"error":   "internal",
				"message": "Server configuration error",
			})
		}

		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return unauthenticated(c, "Missing bearer token")
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return unauthenticated(c, "Invalid token")
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			return unauthenticated(c, "Invalid token")
		}

		user, err := storage.GetStore().GetUser(subject)
		if err != nil {
			return unauthenticated(c, "Unknown user")
		}
		if !user.IsActive {
			return unauthenticated(c, "Account deactivated")
		}

		c.Locals(actorKey, models.Actor{UserID: user.UserID, Role: user.Role})
		return c.Next()
	}
}

// RequireRole allows only the named role (admins always pass).
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := ActorFromCtx(c)
		if actor.Role != role && !actor.IsAdmin() {
			return c.Status(403).JSON(fiber.Map{
				"error":   "forbidden",
				"message": fmt.Sprintf("Requires %s role", role),
			})
		}
		return c.Next()
	}
}

// RequireAdmin allows only admins.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !ActorFromCtx(c).IsAdmin() {
			return c.Status(403).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "Requires admin role",
			})
		}
		return c.Next()
	}
}

// ActorFromCtx returns the actor RequireAuth stored on the request.
func ActorFromCtx(c *fiber.Ctx) models.Actor {
	if actor, ok := c.Locals(actorKey).(models.Actor); ok {
		return actor
	}
	return models.Actor{}
}

func unauthenticated(c *fiber.Ctx, message string) error {
	return c.Status(401).JSON(fiber.Map{
		"error":   "unauthenticated",
		"message": message,
	})
}
