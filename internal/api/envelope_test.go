package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
)

func TestEnvelopeTransformer_AlwaysIncludesVersion(t *testing.T) {
	tests := []struct {
		name   string
		status string
		input  any
	}{
		{name: "success response", status: "200", input: map[string]string{"message": "Book borrowed successfully"}},
		{name: "no content response", status: "204", input: nil},
		{name: "plain error", status: "400", input: errors.New("invalid input")},
		{name: "api error", status: "404", input: &APIError{Code: "NOT_FOUND", Message: "book not found"}},
		{name: "domain error", status: "409", input: domainerrors.LimitExceeded("too many books")},
		{name: "empty error body", status: "500", input: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EnvelopeTransformer(nil, tt.status, tt.input)
			require.NoError(t, err)

			jsonBytes, err := json.Marshal(result)
			require.NoError(t, err)

			var envelope map[string]any
			require.NoError(t, json.Unmarshal(jsonBytes, &envelope))

			require.Contains(t, envelope, "v", "Envelope must contain version field 'v'")
			assert.Equal(t, float64(EnvelopeVersion), envelope["v"])
		})
	}
}

func TestEnvelopeTransformer_SuccessResponse(t *testing.T) {
	data := map[string]string{"message": "Book returned successfully", "penalty": "0.50"}

	result, err := EnvelopeTransformer(nil, "200", data)
	require.NoError(t, err)

	envelope, ok := result.(APIEnvelope)
	require.True(t, ok, "Expected APIEnvelope type")

	assert.True(t, envelope.Success)
	assert.Equal(t, data, envelope.Data)
	assert.Empty(t, envelope.Error)
}

func TestEnvelopeTransformer_ErrorResponse(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "400", errors.New("validation failed"))
	require.NoError(t, err)

	envelope, ok := result.(APIEnvelope)
	require.True(t, ok, "Expected APIEnvelope type")

	assert.False(t, envelope.Success)
	assert.Nil(t, envelope.Data)
	assert.Equal(t, "validation failed", envelope.Error)
}

func TestEnvelopeTransformer_DomainErrorKeepsCodeAndDetails(t *testing.T) {
	domainErr := domainerrors.ValidationWithDetails("validation failed", map[string]string{"return_due": "is required"})

	result, err := EnvelopeTransformer(nil, "400", domainErr)
	require.NoError(t, err)

	envelope, ok := result.(APIErrorEnvelope)
	require.True(t, ok, "Expected APIErrorEnvelope type")

	assert.False(t, envelope.Success)
	assert.Equal(t, "VALIDATION", envelope.Code)
	assert.Equal(t, "validation failed", envelope.Error)
	assert.Equal(t, map[string]string{"return_due": "is required"}, envelope.Details)
}

func TestRegisterErrorHandler_MapsDomainErrors(t *testing.T) {
	RegisterErrorHandler()

	tests := []struct {
		name       string
		status     int
		errs       []error
		wantStatus int
		wantCode   string
	}{
		{"limit exceeded", 500, []error{domainerrors.LimitExceeded("cap")}, 409, "LIMIT_EXCEEDED"},
		{"wrapped not found", 500, []error{errors.Join(errors.New("lookup"), domainerrors.NotFound("no book"))}, 404, "NOT_FOUND"},
		{"schema validation", 422, []error{errors.New("expected required property return_due")}, 400, "VALIDATION"},
		{"plain status", 403, nil, 403, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := huma.NewError(tt.status, "failed", tt.errs...)
			assert.Equal(t, tt.wantStatus, se.GetStatus())

			apiErr, ok := se.(*APIError)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}
