// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/app/middleware"
	businessflow "github.com/amirphl/docnum/business_flow"
	"github.com/amirphl/docnum/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/hashicorp/go-hclog"
)

// retryAfterSeconds is advertised when number generation gave up under contention
const retryAfterSeconds = "1"

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		if err.Kind().String() == "string" {
			return err.Field() + " must be at least " + err.Param() + " characters"
		}
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		if err.Kind().String() == "string" {
			return err.Field() + " must be at most " + err.Param() + " characters"
		}
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "alphanum":
		return err.Field() + " must contain only letters and digits"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// validationDetails turns validator errors into one message per field
func validationDetails(err error) (string, []string) {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "Validation failed", nil
	}
	details := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		details = append(details, getValidationErrorMessage(fe))
	}
	return details[0], details
}

func errorResponse(c fiber.Ctx, statusCode int, message, code string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code, Details: details},
	})
}

// flowErrorStatus maps a business error class to an HTTP status
func flowErrorStatus(err error) int {
	switch {
	case businessflow.IsValidation(err):
		return fiber.StatusBadRequest
	case businessflow.IsNotFound(err):
		return fiber.StatusNotFound
	case businessflow.IsConflict(err):
		return fiber.StatusConflict
	case businessflow.IsInfrastructure(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// flowErrorCode prefers the BusinessError code and falls back to the sentinel
func flowErrorCode(err error) string {
	if code := businessflow.ErrorCode(err); code != "" {
		return code
	}
	switch {
	case businessflow.IsDocumentTypeInactive(err):
		return "DOCUMENT_TYPE_INACTIVE"
	case businessflow.IsDocumentTypeNotFound(err):
		return "DOCUMENT_TYPE_NOT_FOUND"
	case businessflow.IsNumberLogNotFound(err):
		return "HISTORY_ENTRY_NOT_FOUND"
	case businessflow.IsAuditLogNotFound(err):
		return "AUDIT_LOG_NOT_FOUND"
	case errors.Is(err, businessflow.ErrUnsupportedExportFormat):
		return "UNSUPPORTED_EXPORT_FORMAT"
	case businessflow.IsValidation(err):
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// flowErrorMessage returns a client safe message. Infrastructure details stay in the logs.
func flowErrorMessage(err error, fallback string) string {
	switch {
	case businessflow.IsInfrastructure(err):
		return "Service temporarily unavailable, please retry"
	case businessflow.IsGenerationExhausted(err):
		return "Too many concurrent requests for this sequence, please retry"
	case businessflow.IsDocumentTypeInactive(err):
		return "Document type is inactive"
	case businessflow.IsDocumentTypeNotFound(err):
		return "Document type not found"
	case businessflow.IsNumberLogNotFound(err):
		return "History entry not found"
	case businessflow.IsAuditLogNotFound(err):
		return "Audit log not found"
	case businessflow.IsValidation(err):
		var be *businessflow.BusinessError
		if errors.As(err, &be) {
			return be.Message
		}
		msg, _, _ := strings.Cut(err.Error(), ":")
		return msg
	default:
		return fallback
	}
}

func handleFlowError(c fiber.Ctx, logger hclog.Logger, err error, fallback string) error {
	status := flowErrorStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(fallback, "path", c.Path(), "error", err)
	} else {
		logger.Debug(fallback, "path", c.Path(), "error", err)
	}
	if businessflow.IsGenerationExhausted(err) {
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
	}
	return errorResponse(c, status, flowErrorMessage(err, fallback), flowErrorCode(err), nil)
}

func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if id := requestid.FromContext(c); id != "" {
		metadata.SetRequestID(id)
	} else {
		metadata.SetRequestID(c.Get("X-Request-ID"))
	}
	return metadata
}

func currentActor(c fiber.Ctx) (businessflow.Actor, bool) {
	return middleware.GetActorFromContext(c)
}

func missingActor(c fiber.Ctx) error {
	return errorResponse(c, fiber.StatusUnauthorized, "Authenticated actor is required", "MISSING_ACTOR", nil)
}

// createRequestContext detaches the flow from the fasthttp context and bounds it by timeout
func createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestid.FromContext(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	return ctx, cancel
}

// parseHistoryFilter reads the shared history filters from the query string.
// user_id is accepted as an alias of actor_id.
func parseHistoryFilter(c fiber.Ctx) (dto.HistoryFilter, error) {
	var filter dto.HistoryFilter
	if code := strings.TrimSpace(c.Query("document_type_code")); code != "" {
		filter.DocumentTypeCode = &code
	}
	if yearStr := strings.TrimSpace(c.Query("year")); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return filter, fmt.Errorf("year must be a number")
		}
		filter.Year = &year
	}
	actorID := strings.TrimSpace(c.Query("actor_id"))
	if actorID == "" {
		actorID = strings.TrimSpace(c.Query("user_id"))
	}
	if actorID != "" {
		filter.ActorID = &actorID
	}
	if action := strings.TrimSpace(c.Query("action")); action != "" {
		filter.Action = &action
	}
	return filter, nil
}
