package handlers

import (
	"context"
	"log"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/app/dto"
	"github.com/canjrgultekin/profiqo-sub000/app/middleware"
	businessflow "github.com/canjrgultekin/profiqo-sub000/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type ResolutionHandlerInterface interface {
	ResolveCustomer(c fiber.Ctx) error
	ResolveBatch(c fiber.Ctx) error
}

type ResolutionHandler struct {
	flow      businessflow.ResolutionFlow
	validator *validator.Validate
}

func NewResolutionHandler(flow businessflow.ResolutionFlow, validator *validator.Validate) ResolutionHandlerInterface {
	return &ResolutionHandler{flow: flow, validator: validator}
}

func (h *ResolutionHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *ResolutionHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// ResolveCustomer maps one customer id to its canonical id.
// @Summary Resolve Customer ID
// @Description Map a raw customer id to its canonical id; unlinked ids resolve to themselves
// @Tags Resolution
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param customerId path string true "Customer ID"
// @Success 200 {object} dto.APIResponse{data=dto.ResolveCustomerResponse}
// @Failure 400 {object} dto.APIResponse "Invalid customer id"
// @Router /api/v1/customers/resolve/{customerId} [get]
func (h *ResolutionHandler) ResolveCustomer(c fiber.Ctx) error {
	customerID, err := uuid.Parse(c.Params("customerId"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Customer id must be a valid uuid", "CUSTOMER_ID_REQUIRED", nil)
	}

	res, err := h.flow.ResolveCustomerID(h.createRequestContext(c), middleware.TenantFromContext(c), customerID)
	if err != nil {
		log.Println("Resolve customer id failed:", err)
		return h.resolutionErrorResponse(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Customer id resolved", res)
}

// ResolveBatch maps a batch of customer ids to their canonical ids.
// @Summary Resolve Customer IDs
// @Description Map up to 1000 raw customer ids to their canonical ids in one call
// @Tags Resolution
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param request body dto.ResolveBatchRequest true "Customer id batch"
// @Success 200 {object} dto.APIResponse{data=dto.ResolveBatchResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/customers/resolve [post]
func (h *ResolutionHandler) ResolveBatch(c fiber.Ctx) error {
	var req dto.ResolveBatchRequest
	if err := c.Bind().Body(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST_BODY", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		var details []map[string]string
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				details = append(details, map[string]string{
					"field":   fieldError.Field(),
					"message": getValidationErrorMessage(fieldError),
				})
			}
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", details)
	}

	res, err := h.flow.ResolveCustomerIDs(h.createRequestContext(c), middleware.TenantFromContext(c), &req)
	if err != nil {
		log.Println("Resolve customer ids failed:", err)
		return h.resolutionErrorResponse(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Customer ids resolved", res)
}

func (h *ResolutionHandler) resolutionErrorResponse(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsMissingTenantContext(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Tenant context is required", "MISSING_TENANT_CONTEXT", nil)
	case businessflow.IsCustomerIDRequired(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Customer id must be a valid uuid", "CUSTOMER_ID_REQUIRED", nil)
	case businessflow.IsResolveBatchTooLarge(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Too many customer ids in one request", "RESOLVE_BATCH_TOO_LARGE", nil)
	default:
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Resolution failed", "RESOLUTION_FAILED", nil)
	}
}

func (h *ResolutionHandler) createRequestContext(c fiber.Ctx) context.Context {
	return createRequestContextWithTimeout(c, c.Path(), 10*time.Second)
}
