package handlers

import (
	"github.com/amirphl/docnum/app/dto"
	businessflow "github.com/amirphl/docnum/business_flow"
	"github.com/amirphl/docnum/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/hashicorp/go-hclog"
)

// DocumentTypeHandlerInterface defines the document type endpoints
type DocumentTypeHandlerInterface interface {
	ListActive(c fiber.Ctx) error
	SetActive(c fiber.Ctx) error
}

type DocumentTypeHandler struct {
	registry  businessflow.DocumentTypeRegistry
	validator *validator.Validate
	logger    hclog.Logger
}

func NewDocumentTypeHandler(registry businessflow.DocumentTypeRegistry, logger hclog.Logger) DocumentTypeHandlerInterface {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DocumentTypeHandler{
		registry:  registry,
		validator: validator.New(),
		logger:    logger.Named("document-type-handler"),
	}
}

// ListActive returns the document types numbers can be generated for
// @Summary List active document types
// @Tags DocumentTypes
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListDocumentTypesResponse}
// @Router /api/v1/document-types [get]
func (h *DocumentTypeHandler) ListActive(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/document-types", utils.RequestTimeout)
	defer cancel()

	result, err := h.registry.ListActive(ctx)
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to list document types")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "Document types retrieved successfully", Data: result})
}

// SetActive switches a document type on or off. Inactive types keep their history
// but numbers can no longer be generated for them.
// @Summary Activate or deactivate a document type
// @Tags DocumentTypes
// @Accept json
// @Produce json
// @Param code path string true "Document type code"
// @Param request body dto.SetDocumentTypeActiveRequest true "New active flag"
// @Success 200 {object} dto.APIResponse{data=dto.DocumentTypeDTO}
// @Failure 400 {object} dto.APIResponse
// @Failure 403 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/document-types/{code} [patch]
func (h *DocumentTypeHandler) SetActive(c fiber.Ctx) error {
	var req dto.SetDocumentTypeActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		message, details := validationDetails(err)
		return errorResponse(c, fiber.StatusBadRequest, message, "VALIDATION_ERROR", details)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/document-types/:code", utils.RequestTimeout)
	defer cancel()

	result, err := h.registry.SetActive(ctx, c.Params("code"), *req.IsActive)
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to update document type")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "Document type updated successfully", Data: result})
}
