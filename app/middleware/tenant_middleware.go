// Package middleware provides HTTP middleware for tenant scoping and request metrics
package middleware

import (
	"github.com/canjrgultekin/profiqo-sub000/app/dto"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const (
	// TenantHeader carries the tenant id on every API request.
	TenantHeader = "X-Tenant-ID"

	// TenantIDKey is the fiber locals key the tenant id is stored under.
	TenantIDKey = "tenant_id"
)

// TenantMiddleware extracts and validates the tenant id header. Every row in
// the store is tenant-scoped, so requests without a valid tenant id are
// rejected before reaching any handler.
func TenantMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw := c.Get(TenantHeader)
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
				Success: false,
				Message: "Tenant context is required",
				Error:   dto.ErrorDetail{Code: "MISSING_TENANT_CONTEXT", Details: "X-Tenant-ID header is required"},
			})
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
				Success: false,
				Message: "Tenant context is invalid",
				Error:   dto.ErrorDetail{Code: "MISSING_TENANT_CONTEXT", Details: "X-Tenant-ID header must be a valid uuid"},
			})
		}

		c.Locals(TenantIDKey, tenantID)
		return c.Next()
	}
}

// TenantFromContext returns the tenant id stored by TenantMiddleware.
func TenantFromContext(c fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals(TenantIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
