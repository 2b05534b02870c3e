// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"strings"

	"github.com/amirphl/docnum/app/dto"
	businessflow "github.com/amirphl/docnum/business_flow"
	"github.com/gofiber/fiber/v3"
)

// Headers set by the authentication gateway in front of the service
const (
	ActorIDHeader   = "X-Actor-ID"
	ActorNameHeader = "X-Actor-Name"
	ActorRoleHeader = "X-Actor-Role"
)

const actorLocalsKey = "actor"

// AuthMiddleware trusts the identity forwarded by the gateway
type AuthMiddleware struct{}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware() *AuthMiddleware {
	return &AuthMiddleware{}
}

// Authenticate rejects requests that carry no actor
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		actorID := strings.TrimSpace(c.Get(ActorIDHeader))
		if actorID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Authenticated actor is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_ACTOR",
				},
			})
		}

		role := strings.ToLower(strings.TrimSpace(c.Get(ActorRoleHeader)))
		if role == "" {
			role = businessflow.RoleUser
		}

		c.Locals(actorLocalsKey, businessflow.Actor{
			ID:   actorID,
			Name: strings.TrimSpace(c.Get(ActorNameHeader)),
			Role: role,
		})

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// RequireAdmin must run after Authenticate
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		actor, ok := GetActorFromContext(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Authenticated actor is required",
				Error:   dto.ErrorDetail{Code: "MISSING_ACTOR"},
			})
		}
		if !actor.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Administrator role is required",
				Error:   dto.ErrorDetail{Code: "ADMIN_REQUIRED"},
			})
		}
		return c.Next()
	}
}

// GetActorFromContext returns the actor stored by Authenticate
func GetActorFromContext(c fiber.Ctx) (businessflow.Actor, bool) {
	actor, ok := c.Locals(actorLocalsKey).(businessflow.Actor)
	return actor, ok
}

// ActorKey keys the rate limiter by actor, falling back to the client IP
func ActorKey(c fiber.Ctx) string {
	if actor, ok := GetActorFromContext(c); ok {
		return "actor:" + actor.ID
	}
	if actorID := strings.TrimSpace(c.Get(ActorIDHeader)); actorID != "" {
		return "actor:" + actorID
	}
	return "ip:" + c.IP()
}
