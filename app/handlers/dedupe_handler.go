package handlers

import (
	"context"
	"log"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/app/dto"
	"github.com/canjrgultekin/profiqo-sub000/app/middleware"
	businessflow "github.com/canjrgultekin/profiqo-sub000/business_flow"
	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type DedupeHandlerInterface interface {
	ListPending(c fiber.Ctx) error
	ExportPending(c fiber.Ctx) error
	GetSuggestion(c fiber.Ctx) error
	UpsertSuggestions(c fiber.Ctx) error
	Approve(c fiber.Ctx) error
	Reject(c fiber.Ctx) error
}

type DedupeHandler struct {
	flow      businessflow.MergeFlow
	validator *validator.Validate
}

func NewDedupeHandler(flow businessflow.MergeFlow, validator *validator.Validate) DedupeHandlerInterface {
	return &DedupeHandler{flow: flow, validator: validator}
}

func (h *DedupeHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h *DedupeHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// mergeErrorResponse maps merge flow errors onto HTTP statuses.
func (h *DedupeHandler) mergeErrorResponse(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	switch {
	case businessflow.IsMissingTenantContext(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Tenant context is required", "MISSING_TENANT_CONTEXT", nil)
	case businessflow.IsGroupKeyRequired(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Group key is required", "GROUP_KEY_REQUIRED", nil)
	case businessflow.IsSuggestionTTLInvalid(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Suggestion TTL is invalid", "SUGGESTION_TTL_INVALID", nil)
	case businessflow.IsSuggestionNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "No live suggestion for group key", "SUGGESTION_NOT_FOUND", nil)
	case businessflow.IsMalformedSuggestion(err):
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Suggestion payload cannot describe a merge", "MALFORMED_SUGGESTION", nil)
	case businessflow.IsTransientConflict(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Concurrent merge conflict, retry the request", "TRANSIENT_CONFLICT", nil)
	default:
		return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
	}
}

// ListPending returns duplicate groups awaiting a decision for the tenant.
// @Summary List Pending Merge Groups
// @Description List non-expired duplicate groups with no decision against their current version
// @Tags Dedupe
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param take query int false "Page size (1-500, default 50)"
// @Success 200 {object} dto.APIResponse{data=dto.ListPendingResponse}
// @Failure 400 {object} dto.APIResponse "Missing tenant context"
// @Router /api/v1/customers/dedupe/pending [get]
func (h *DedupeHandler) ListPending(c fiber.Ctx) error {
	take := fiber.Query(c, "take", utils.DefaultPendingTake)

	res, err := h.flow.ListPending(h.createRequestContext(c, "/api/v1/customers/dedupe/pending"), middleware.TenantFromContext(c), take)
	if err != nil {
		log.Println("List pending merge groups failed:", err)
		return h.mergeErrorResponse(c, err, "List pending merge groups failed", "PENDING_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pending merge groups retrieved", res)
}

// ExportPending downloads the pending review list as an XLSX file.
// @Summary Export Pending Merge Groups
// @Description Download the pending review list as a spreadsheet
// @Tags Dedupe
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param take query int false "Page size (1-500, default 50)"
// @Success 200 {file} binary
// @Router /api/v1/customers/dedupe/pending/export [get]
func (h *DedupeHandler) ExportPending(c fiber.Ctx) error {
	take := fiber.Query(c, "take", utils.DefaultPendingTake)

	data, err := h.flow.ExportPending(h.createRequestContext(c, "/api/v1/customers/dedupe/pending/export"), middleware.TenantFromContext(c), take)
	if err != nil {
		log.Println("Export pending merge groups failed:", err)
		return h.mergeErrorResponse(c, err, "Export pending merge groups failed", "PENDING_EXPORT_FAILED")
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="pending-merge-groups.xlsx"`)
	return c.Send(data)
}

// GetSuggestion returns one suggestion with its candidate snapshot.
// @Summary Get Merge Suggestion
// @Description Get the live suggestion for a group key
// @Tags Dedupe
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param groupKey path string true "Group key"
// @Success 200 {object} dto.APIResponse{data=dto.SuggestionDetailResponse}
// @Failure 404 {object} dto.APIResponse "Suggestion not found"
// @Router /api/v1/customers/dedupe/suggestions/{groupKey} [get]
func (h *DedupeHandler) GetSuggestion(c fiber.Ctx) error {
	res, err := h.flow.GetSuggestion(h.createRequestContext(c, "/api/v1/customers/dedupe/suggestions/:groupKey"), middleware.TenantFromContext(c), c.Params("groupKey"))
	if err != nil {
		log.Println("Get merge suggestion failed:", err)
		return h.mergeErrorResponse(c, err, "Get merge suggestion failed", "SUGGESTION_LOOKUP_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Merge suggestion retrieved", res)
}

// UpsertSuggestions accepts a batch of duplicate-group proposals.
// @Summary Upsert Merge Suggestions
// @Description Accept a batch of duplicate-group proposals from the dedupe producer
// @Tags Dedupe
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param request body dto.UpsertSuggestionsRequest true "Suggestion batch"
// @Success 200 {object} dto.APIResponse{data=dto.UpsertSuggestionsResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /api/v1/customers/dedupe/suggestions [post]
func (h *DedupeHandler) UpsertSuggestions(c fiber.Ctx) error {
	var req dto.UpsertSuggestionsRequest
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

	res, err := h.flow.UpsertSuggestions(h.createRequestContext(c, "/api/v1/customers/dedupe/suggestions"), middleware.TenantFromContext(c), &req)
	if err != nil {
		log.Println("Upsert merge suggestions failed:", err)
		return h.mergeErrorResponse(c, err, "Upsert merge suggestions failed", "SUGGESTION_UPSERT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Merge suggestions upserted", res)
}

// Approve merges the group behind a suggestion under one canonical id.
// @Summary Approve Merge Group
// @Description Union the suggested duplicates under a deterministic canonical customer id
// @Tags Dedupe
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param groupKey path string true "Group key"
// @Success 200 {object} dto.APIResponse{data=dto.ApproveMergeResponse}
// @Failure 404 {object} dto.APIResponse "Suggestion not found"
// @Failure 409 {object} dto.APIResponse "Transient conflict"
// @Failure 422 {object} dto.APIResponse "Malformed suggestion"
// @Router /api/v1/customers/dedupe/suggestions/{groupKey}/approve [post]
func (h *DedupeHandler) Approve(c fiber.Ctx) error {
	res, err := h.flow.Approve(h.createRequestContext(c, "/api/v1/customers/dedupe/suggestions/:groupKey/approve"), middleware.TenantFromContext(c), c.Params("groupKey"))
	if err != nil {
		log.Println("Approve merge group failed:", err)
		return h.mergeErrorResponse(c, err, "Approve merge group failed", "MERGE_APPROVE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Merge group approved", res)
}

// Reject records a rejected decision for the suggestion's current version.
// @Summary Reject Merge Group
// @Description Record a rejected decision; no links are written
// @Tags Dedupe
// @Produce json
// @Param X-Tenant-ID header string true "Tenant ID"
// @Param groupKey path string true "Group key"
// @Success 200 {object} dto.APIResponse{data=dto.RejectMergeResponse}
// @Failure 404 {object} dto.APIResponse "Suggestion not found"
// @Router /api/v1/customers/dedupe/suggestions/{groupKey}/reject [post]
func (h *DedupeHandler) Reject(c fiber.Ctx) error {
	res, err := h.flow.Reject(h.createRequestContext(c, "/api/v1/customers/dedupe/suggestions/:groupKey/reject"), middleware.TenantFromContext(c), c.Params("groupKey"))
	if err != nil {
		log.Println("Reject merge group failed:", err)
		return h.mergeErrorResponse(c, err, "Reject merge group failed", "MERGE_REJECT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Merge group rejected", res)
}

func (h *DedupeHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
