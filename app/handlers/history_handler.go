package handlers

import (
	"strconv"

	"github.com/amirphl/docnum/app/dto"
	businessflow "github.com/amirphl/docnum/business_flow"
	"github.com/amirphl/docnum/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/hashicorp/go-hclog"
)

// HistoryHandlerInterface defines the history endpoints
type HistoryHandlerInterface interface {
	List(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	Statistics(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

// HistoryHandler serves the read side of the number history
type HistoryHandler struct {
	flow      businessflow.HistoryFlow
	validator *validator.Validate
	logger    hclog.Logger
}

func NewHistoryHandler(flow businessflow.HistoryFlow, logger hclog.Logger) HistoryHandlerInterface {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HistoryHandler{
		flow:      flow,
		validator: validator.New(),
		logger:    logger.Named("history-handler"),
	}
}

// List returns one page of history, newest first
// @Summary List number history
// @Tags History
// @Produce json
// @Param document_type_code query string false "Document type code"
// @Param year query int false "Year"
// @Param actor_id query string false "Actor ID"
// @Param action query string false "generated or corrected"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 50, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.ListHistoryResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/history [get]
func (h *HistoryHandler) List(c fiber.Ctx) error {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}
	if err := h.validator.Struct(&filter); err != nil {
		message, details := validationDetails(err)
		return errorResponse(c, fiber.StatusBadRequest, message, "VALIDATION_ERROR", details)
	}

	req := dto.ListHistoryRequest{Filter: filter, Page: 1, PageSize: businessflow.DefaultHistoryPageSize}
	if pageStr := c.Query("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil {
			req.Page = parsed
		}
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil {
			req.PageSize = parsed
		}
	}

	ctx, cancel := createRequestContext(c, "/api/v1/history", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.List(ctx, &req)
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to list history")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "History retrieved successfully", Data: result})
}

// Get returns one history entry by its ordering key
// @Summary Get history entry
// @Tags History
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} dto.APIResponse{data=dto.NumberLogDTO}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/history/{id} [get]
func (h *HistoryHandler) Get(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/history/:id", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.GetEntry(ctx, c.Params("id"))
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to get history entry")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "History entry retrieved successfully", Data: result})
}

// Statistics summarises the history matching the filters
// @Summary History statistics
// @Tags History
// @Produce json
// @Param document_type_code query string false "Document type code"
// @Param year query int false "Year"
// @Success 200 {object} dto.APIResponse{data=dto.HistoryStatisticsResponse}
// @Router /api/v1/history/statistics [get]
func (h *HistoryHandler) Statistics(c fiber.Ctx) error {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/history/statistics", utils.RequestTimeout)
	defer cancel()

	result, err := h.flow.Statistics(ctx, filter)
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to compute statistics")
	}
	return c.JSON(dto.APIResponse{Success: true, Message: "Statistics retrieved successfully", Data: result})
}

// Export downloads the matching history as CSV or XLSX
// @Summary Export number history
// @Tags History
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "csv (default) or xlsx"
// @Success 200 {string} string "File"
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/history/export [get]
func (h *HistoryHandler) Export(c fiber.Ctx) error {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}
	req := dto.ExportHistoryRequest{Filter: filter, Format: c.Query("format", businessflow.ExportFormatCSV)}
	if err := h.validator.Struct(&req); err != nil {
		message, details := validationDetails(err)
		return errorResponse(c, fiber.StatusBadRequest, message, "VALIDATION_ERROR", details)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/history/export", utils.ExportTimeout)
	defer cancel()

	filename, data, err := h.flow.Export(ctx, &req)
	if err != nil {
		return handleFlowError(c, h.logger, err, "Failed to export history")
	}

	if req.Format == businessflow.ExportFormatXLSX {
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	} else {
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(data)
}
