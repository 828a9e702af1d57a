package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
)

// FailureResponse is the body returned for business-rule violations and
// other request-level failures.
type FailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SendFailure writes a {success:false, error} body with the given status.
func SendFailure(c echo.Context, status int, message string) error {
	return c.JSON(status, FailureResponse{Success: false, Error: message})
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	return SendFailure(c, http.StatusBadRequest, fmt.Sprintf("%s: %s", field, message))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return SendFailure(c, http.StatusInternalServerError, message)
}

// SendInternalError answers 500. A DatabaseError is passed through as its
// own message; anything else is replaced by fallback.
func SendInternalError(c echo.Context, err error, fallback string) error {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return SendServerError(c, dbErr.Error())
	}
	return SendServerError(c, fallback)
}

// SendUnauthorizedError sends an unauthorized error response
func SendUnauthorizedError(c echo.Context) error {
	return SendFailure(c, http.StatusUnauthorized, "Unauthorized access")
}

// ValidateUUID validates UUID format with comprehensive checks
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("%s is required", fieldName)
	}

	if len(idStr) != 36 {
		return uuid.Nil, fmt.Errorf("%s must be exactly 36 characters (including hyphens)", fieldName)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s contains invalid characters: %v", fieldName, err)
	}

	return id, nil
}

// SafeString safely handles string pointer operations
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// WithUserID stores the authenticated user's id on the context.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}
