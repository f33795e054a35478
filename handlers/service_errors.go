package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/sqlpilot/services"
	"github.com/upb/sqlpilot/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := publicMessage(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsUnauthorizedError(err):
		// auth failures are indistinguishable to the caller, except a bad login
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeErr = utils.WriteUnauthorized(w, "invalid credentials")
		} else {
			writeErr = utils.WriteUnauthorized(w, "unauthorized")
		}

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsUnprocessableError(err):
		writeErr = utils.WriteUnprocessable(w, message, details)

	case services.IsExternalError(err):
		// upstream message is passed through for diagnosis
		logger.Warn("upstream error", zap.Error(err))
		writeErr = utils.WriteBadGateway(w, upstreamMessage(err), details)

	case services.IsInternalError(err):
		logger.Error("internal server error",
			zap.String("code", services.GetErrorCode(err)),
			zap.Error(err))
		if errors.Is(err, services.ErrGenerationUnavailable) || errors.Is(err, services.ErrGenerationFailed) {
			writeErr = utils.WriteInternalServerError(w, message)
		} else {
			writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// publicMessage is the domain message without wrapped causes
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// upstreamMessage appends the warehouse's own wording to the domain message
func upstreamMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) && domainErr.Err != nil {
		return domainErr.Message + ": " + domainErr.Err.Error()
	}
	return publicMessage(err)
}
