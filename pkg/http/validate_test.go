package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoreReq struct {
	Category string  `json:"category" validate:"required,oneof=cpu memory"`
	CPU      float64 `json:"cpu_percent" validate:"gte=0,lte=100"`
	Limit    int     `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

func bindJSON(t *testing.T, body string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(r, httptest.NewRecorder())
	return ReadAndValidateRequest(c, req)
}

func TestReadAndValidateRequest(t *testing.T) {
	var ok scoreReq
	require.Nil(t, bindJSON(t, `{"category": "cpu", "cpu_percent": 12.5}`, &ok))
	assert.Equal(t, 50, ok.Limit)

	var bad scoreReq
	errs, isList := bindJSON(t, `{"category": "disk", "cpu_percent": 120}`, &bad).([]ValidationError)
	require.True(t, isList)
	require.Len(t, errs, 2)
	assert.Equal(t, "category", errs[0].Field)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "category must be one of: cpu, memory", errs[0].Message)
	assert.Equal(t, "cpu_percent", errs[1].Field)
	assert.Equal(t, "100", errs[1].Params["max"])

	var malformed scoreReq
	errs, _ = bindJSON(t, `{"category": `, &malformed).([]ValidationError)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_MALFORMED", errs[0].Code)
}

func TestAppErrorResponse(t *testing.T) {
	e := echo.New()
	write := func(err error) (int, APIResponse) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.Response().Header().Set(echo.HeaderXRequestID, "req-1")
		require.NoError(t, AppErrorResponse(c, err))
		var out APIResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec.Code, out
	}

	code, body := write(ConflictError("training already running"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, http.StatusConflict, body.Status)
	assert.Equal(t, "req-1", body.RequestID)

	code, _ = write(UnavailableError("virustotal not configured"))
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = write(InternalError("db password is hunter2"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Something went wrong", body.Data)

	code, _ = write(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, code)
}
