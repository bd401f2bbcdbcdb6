package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const genericFailure = "Something went wrong"

func envelope(c echo.Context, code int, data interface{}) APIResponse {
	return APIResponse{
		Status:    code,
		Message:   http.StatusText(code),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Data:      data,
	}
}

// DataResponse writes data under the given status.
func DataResponse(c echo.Context, code int, data interface{}) error {
	return c.JSON(code, envelope(c, code, data))
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, Page{Rows: rows, Total: total})
}

func BadRequestResponse(c echo.Context, details interface{}) error {
	return DataResponse(c, http.StatusBadRequest, details)
}

// AppErrorResponse answers with the status err maps to. Unmapped errors and
// server faults other than 503 get a generic body so internals never leak.
func AppErrorResponse(c echo.Context, err error) error {
	var ae *AppError
	if !errors.As(err, &ae) {
		return DataResponse(c, http.StatusInternalServerError, genericFailure)
	}
	if ae.Status >= http.StatusInternalServerError && ae.Status != http.StatusServiceUnavailable {
		return DataResponse(c, ae.Status, genericFailure)
	}
	return DataResponse(c, ae.Status, []*AppError{ae})
}
