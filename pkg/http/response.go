package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the standard envelope with the given status code.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes a 200 response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// ListResponse writes a list payload with its total.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return DataResponse(c, http.StatusOK, &ListDataResponse{Rows: rows, Total: total})
}

// BadRequestResponse writes a 400 with validation details.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse maps an error to the envelope, unwrapping AppError
// statuses and defaulting everything else to 500.
func AppErrorResponse(c echo.Context, err error) error {
	var ae *AppError
	if errors.As(err, &ae) {
		return DataResponse(c, ae.Status, ae)
	}
	return DataResponse(c, http.StatusInternalServerError, InternalError(err.Error()))
}
