package http

import "github.com/labstack/echo/v4"

// Handler mounts a route group on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// APIResponse wraps every JSON body the API writes. RequestID mirrors the
// X-Request-ID response header so clients can quote it in bug reports.
type APIResponse struct {
	Status    int         `json:"status"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ValidationError is one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Page is a list result with the total before the limit was applied.
type Page struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
