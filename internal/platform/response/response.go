package response

import (
	"net/http"

	"github.com/Kilat-Pet-Delivery/service-routemap/internal/platform/apperr"
	"github.com/gin-gonic/gin"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes a 200 response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// NoContent writes a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest writes a 400 validation error.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Error: &ErrorBody{Code: "VALIDATION_ERROR", Message: message}})
}

// Unauthorized writes a 401 error and aborts the chain.
func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Error: &ErrorBody{Code: "UNAUTHORIZED", Message: message}})
}

// Error maps err to a response. Unknown errors become a 500 without detail.
func Error(c *gin.Context, err error) {
	if appErr, ok := apperr.As(err); ok {
		c.JSON(appErr.HTTPStatus(), Envelope{Error: &ErrorBody{Code: appErr.Code, Message: appErr.Message}})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, Envelope{Error: &ErrorBody{Code: "INTERNAL_ERROR", Message: "internal server error"}})
}
