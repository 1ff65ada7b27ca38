package errorhandler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mwork/socialgraph-api/internal/middleware"
	"github.com/mwork/socialgraph-api/internal/pkg/logger"
	"github.com/mwork/socialgraph-api/internal/pkg/response"
)

// HandleError logs the failure with request context and writes an error response.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("error_code", code).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	response.Error(w, status, code, message)
}

// LogDatabaseError logs store errors with the failing operation.
func LogDatabaseError(ctx context.Context, operation string, err error) {
	logger.FromContext(ctx).Error().
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("operation", operation).
		Err(err).
		Msg("Database error")
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	errJSON, _ := json.Marshal(fieldErrors)
	logger.FromContext(ctx).Warn().
		Str("request_id", middleware.GetRequestID(ctx)).
		RawJSON("validation_errors", errJSON).
		Msg("Validation error")
}
