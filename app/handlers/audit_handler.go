package handlers

import (
	"strconv"
	"strings"

	"github.com/amirphl/docnum/app/dto"
	businessflow "github.com/amirphl/docnum/business_flow"
	"github.com/amirphl/docnum/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/hashicorp/go-hclog"
)

// AuditHandlerInterface defines the audit trail endpoints
type AuditHandlerInterface interface {
	List(c fiber.Ctx) error
	Get(c fiber.Ctx) error
}

type AuditHandler struct {
	flow      businessflow.AuditFlow
	validator *validator.Validate
	logger    hclog.Logger
}

func NewAuditHandler(flow businessflow.AuditFlow, logger hclog.Logger) AuditHandlerInterface {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &AuditHandler{
		flow:      flow,
		validator: validator.New(),
		logger:    logger.Named("audit-handler"),
	}
}

func optionalQuery(c fiber.Ctx, key string) *string {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return &v
	}
	return nil
}

// List returns one page of audit events, newest first
// @Summary List audit logs
// @Tags Audit
// @Produce json
// @Param action query string false "number_generated or number_corrected"
// @Param actor_id query string false "Actor ID"
// @Param target_type query string false "Target type"
// @Param target_id query string false "Target ID, e.g. OF_2025"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 50, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.ListAuditLogsResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 403 {object} dto.APIResponse
// @Router /api/v1/audit [get]
func (h *AuditHandler) List(c fiber.Ctx) error {
	req := dto.ListAuditLogsRequest{
		Action:     optionalQuery(c, "action"),
		ActorID:    optionalQuery(c, "actor_id"),
		TargetType: optionalQuery(c, "target_type"),
		TargetID:   optionalQuery(c, "target_id"),
		Page:       1,
		PageSize:   businessflow.DefaultHistoryPageSize,
	}
	if parsed, err := strconv.Atoi(c.Query("page")); err == nil {
		req.Page = parsed
	}
	if parsed, err := strconv.Atoi(c.Query("page_size")); err == nil {
		req.PageSize = parsed
	}
	if err := h.validator.Struct(&req); err != nil {
		message, details := validationDetails(err)
		return errorResponse(c, fiber.StatusBadRequest, message, "VALIDATION_ERROR", details)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/audit", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.List(ctx, &req)
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to list audit logs")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "Audit logs retrieved successfully", Data: result})
}

// Get returns one audit event
// @Summary Get audit log
// @Tags Audit
// @Produce json
// @Param id path int true "Audit log ID"
// @Success 200 {object} dto.APIResponse{data=dto.AuditLogDTO}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/audit/{id} [get]
func (h *AuditHandler) Get(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "id must be a positive number", "VALIDATION_ERROR", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/audit/:id", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.Get(ctx, uint(id))
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to get audit log")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "Audit log retrieved successfully", Data: result})
}
