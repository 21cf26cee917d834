// Package response holds the {success, ...} JSON envelope used by the
// session-initiation endpoint.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type SuccessResponse struct {
	Success     bool   `json:"success"`
	Data        any    `json:"data,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func Ok(c echo.Context, data any, instruction string) error {
	return c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data, Instruction: instruction})
}

func Created(c echo.Context, data any, instruction string) error {
	return c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data, Instruction: instruction})
}

func Fail(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorResponse{Success: false, Error: message})
}
