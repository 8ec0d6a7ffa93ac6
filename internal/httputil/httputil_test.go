package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/logging"
)

func TestWriteError_RendersEnvelope(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/inspections/I1", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "req-123"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.NotFound("inspection", "I1"))

	assert.Equal(t, 404, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "error", gjson.Get(body, "status").String())
	assert.Equal(t, "notFound", gjson.Get(body, "code").String())
	assert.Equal(t, "req-123", gjson.Get(body, "requestId").String())
	assert.Equal(t, "I1", gjson.Get(body, "details.id").String())
}

func TestWriteError_OpaqueForInternal(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, assert.AnError)

	assert.Equal(t, 500, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "internal", gjson.Get(body, "code").String())
	assert.Equal(t, "internal error", gjson.Get(body, "message").String())
	assert.NotContains(t, body, assert.AnError.Error())
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{1, 2, 3}, 25, 2, 10)
	assert.Equal(t, 25, p.Total)
	assert.Equal(t, 2, p.PageNum)
	assert.Equal(t, 3, p.TotalPages)
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/components?page=3&limit=20&sort=-name", nil)
	p := ParsePagination(req, 10, 100)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 20, p.Limit)
	assert.Equal(t, 40, p.Skip)
	assert.Equal(t, "name", p.Sort)
	assert.True(t, p.Desc)
}

func TestParsePagination_Bounds(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/components?page=-1&limit=9999", nil)
	p := ParsePagination(req, 10, 100)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 0, p.Skip)
}

func TestDecodeJSON_BadBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	rec := httptest.NewRecorder()
	var v map[string]any
	require.False(t, DecodeJSON(rec, req, &v))
	assert.Equal(t, 400, rec.Code)
}
