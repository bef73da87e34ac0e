package models

import "github.com/gofiber/fiber/v2"

const (
	statusSuccess = "success"
	statusError   = "error"
)

// SuccessResponse wraps every successful payload.
type SuccessResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Status        string `json:"status"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// RespondWithData writes the success envelope.
func RespondWithData(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(SuccessResponse{Status: statusSuccess, Data: data})
}

// RespondWithError writes the error envelope. Internal errors never expose
// their cause; correlationID ties the response to the server log line.
func RespondWithError(c *fiber.Ctx, err error, correlationID string) error {
	appErr := AsAppError(err)
	resp := ErrorResponse{
		Status:  statusError,
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	if appErr.Code == CodeInternal {
		resp.CorrelationID = correlationID
	}
	return c.Status(appErr.Status()).JSON(resp)
}
