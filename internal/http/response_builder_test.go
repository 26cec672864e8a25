package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"butce/internal/middleware/trace"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Body(map[string]int{"n": 1}).
		Write(w)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Test"))
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Type"))
}

func TestErrorResponses(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(trace.WithRequestID(r.Context(), "req_0123456789abcdef"))

	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		status  int
		code    ErrorCode
	}{
		{"bad request", BadRequestError(r, "bad"), http.StatusBadRequest, CodeBadRequest},
		{"unauthorized", UnauthorizedError(r), http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", ForbiddenError(r), http.StatusForbidden, CodeForbidden},
		{"not found", NotFoundError(r, "missing"), http.StatusNotFound, CodeNotFound},
		{"rate limited", RateLimitedError(r), http.StatusTooManyRequests, CodeRateLimited},
		{"internal", InternalServerError(r), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, "req_0123456789abcdef", body.RequestID)
			assert.NotEmpty(t, body.Message)
			assert.Nil(t, body.Issues)
		})
	}
}

func TestValidationErrorCarriesIssues(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()

	issues := Issues{}
	issues.Add("amount", "is required")
	issues.Add("amount", "must be a positive amount")
	ValidationError(r, "Invalid", issues).Write(w)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"message":"Invalid","code":"validation_error","requestId":"","issues":{"amount":["is required","must be a positive amount"]}}`, w.Body.String())
}
