package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/JoeAtEgypt/library-management/internal/errors"
	"github.com/JoeAtEgypt/library-management/internal/validation"
)

type borrowRequest struct {
	BookID    string `json:"book_id" validate:"required,entityid"`
	ReturnDue string `json:"return_due" validate:"required,duedate"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	for _, due := range []string{"2026-03-14", "2026-03-14T09:30:00Z", "2026-03-14T09:30:00+02:00"} {
		err := v.Validate(borrowRequest{BookID: "book-dune", ReturnDue: due})
		assert.NoError(t, err, due)
	}
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       borrowRequest
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing book id",
			req:       borrowRequest{ReturnDue: "2026-03-14"},
			wantField: "book_id",
			wantMsg:   "is required",
		},
		{
			name:      "malformed book id",
			req:       borrowRequest{BookID: "dune; drop table", ReturnDue: "2026-03-14"},
			wantField: "book_id",
			wantMsg:   "must be a valid identifier",
		},
		{
			name:      "missing due date",
			req:       borrowRequest{BookID: "book-dune"},
			wantField: "return_due",
			wantMsg:   "is required",
		},
		{
			name:      "unparseable due date",
			req:       borrowRequest{BookID: "book-dune", ReturnDue: "14/03/2026"},
			wantField: "return_due",
			wantMsg:   "must be a date in YYYY-MM-DD form",
		},
		{
			name:      "bad email",
			req:       borrowRequest{BookID: "book-dune", ReturnDue: "2026-03-14", Email: "not-an-email"},
			wantField: "email",
			wantMsg:   "must be a valid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok, "details should be a field map")
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}

func TestValidator_Var(t *testing.T) {
	v := validation.New()

	require.NoError(t, v.Var("category", "Science Fiction", "max=100"))

	err := v.Var("limit", 500, "lte=100")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}
