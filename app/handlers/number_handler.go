package handlers

import (
	"github.com/amirphl/docnum/app/dto"
	businessflow "github.com/amirphl/docnum/business_flow"
	"github.com/amirphl/docnum/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/hashicorp/go-hclog"
)

// NumberHandlerInterface defines the number allocation endpoints
type NumberHandlerInterface interface {
	Generate(c fiber.Ctx) error
	Correct(c fiber.Ctx) error
	ListSequences(c fiber.Ctx) error
}

// NumberHandler serves allocation and correction requests
type NumberHandler struct {
	flow      businessflow.NumberFlow
	validator *validator.Validate
	logger    hclog.Logger
}

func NewNumberHandler(flow businessflow.NumberFlow, logger hclog.Logger) NumberHandlerInterface {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &NumberHandler{
		flow:      flow,
		validator: validator.New(),
		logger:    logger.Named("number-handler"),
	}
}

// Generate allocates the next number of a document type
// @Summary Generate document number
// @Tags Numbers
// @Accept json
// @Produce json
// @Param request body dto.GenerateNumberRequest true "Document type and optional year"
// @Success 201 {object} dto.APIResponse{data=dto.GenerateNumberResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse
// @Router /api/v1/numbers/generate [post]
func (h *NumberHandler) Generate(c fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return missingActor(c)
	}

	var req dto.GenerateNumberRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		message, details := validationDetails(err)
		return errorResponse(c, fiber.StatusBadRequest, message, "VALIDATION_ERROR", details)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/numbers/generate", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.Allocate(ctx, &req, actor, clientMetadata(c))
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to generate number")
	}

	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{
		Success: true,
		Message: "Number generated successfully",
		Data:    result,
	})
}

// Correct overwrites the counter of a scope
// @Summary Correct document number sequence
// @Tags Numbers
// @Accept json
// @Produce json
// @Param request body dto.CorrectNumberRequest true "Scope, new value and justification"
// @Success 200 {object} dto.APIResponse{data=dto.CorrectNumberResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 403 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/numbers/correct [post]
func (h *NumberHandler) Correct(c fiber.Ctx) error {
	actor, ok := currentActor(c)
	if !ok {
		return missingActor(c)
	}

	var req dto.CorrectNumberRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		message, details := validationDetails(err)
		return errorResponse(c, fiber.StatusBadRequest, message, "VALIDATION_ERROR", details)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/numbers/correct", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.Correct(ctx, &req, actor, clientMetadata(c))
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to correct number")
	}

	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Sequence corrected successfully",
		Data:    result,
	})
}

// ListSequences returns every counter
// @Summary List sequences
// @Tags Numbers
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListSequencesResponse}
// @Router /api/v1/sequences [get]
func (h *NumberHandler) ListSequences(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/sequences", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.ListSequences(ctx)
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to list sequences")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "Sequences retrieved successfully", Data: result})
}
