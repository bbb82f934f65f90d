package onboarding

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lv-onboarding/internal/httputil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadStepInput(t *testing.T) {
	body := `{
		"first_name": "Ada",
		"phone": 5551234567,
		"accept_terms": true,
		"middle_name": null,
		"signature": {"file_name": "s.png", "mime_type": "image/png", "data": "aGk="}
	}`
	r := httptest.NewRequest(http.MethodPost, "/signup/step-2", strings.NewReader(body))
	in, err := readStepInput(r)
	require.NoError(t, err)

	assert.Equal(t, "Ada", in.Fields["first_name"])
	assert.Equal(t, "5551234567", in.Fields["phone"])
	assert.Equal(t, "true", in.Fields["accept_terms"])
	assert.NotContains(t, in.Fields, "middle_name")
	require.Contains(t, in.Files, "signature")
	assert.Equal(t, "s.png", in.Files["signature"].FileName)
}

func TestReadStepInputRejectsArrays(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{"email": ["a@b.co"]}`))
	_, err := readStepInput(r)
	assert.Error(t, err)

	r = httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(``))
	_, err = readStepInput(r)
	assert.EqualError(t, err, "request body is required")
}

func TestWriteErrorStatuses(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	cases := []struct {
		err    error
		status int
	}{
		{&ValidationError{Fields: map[string]string{"email": "email is required"}}, http.StatusUnprocessableEntity},
		{redirectTo(3), http.StatusSeeOther},
		{ErrUnknownStep, http.StatusNotFound},
		{ErrAttemptRequired, http.StatusBadRequest},
		{ErrAlreadyCompleted, http.StatusConflict},
		{errors.Join(ErrProvisioningFailed, errors.New("pq: connection refused")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.writeError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestWriteErrorHidesProvisioningCause(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	rec := httptest.NewRecorder()
	h.writeError(rec, errors.Join(ErrProvisioningFailed, errors.New("pq: password authentication failed")))

	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, ErrProvisioningFailed.Error(), body.Error)
}

func TestRedirectCarriesLocation(t *testing.T) {
	h := &Handler{logger: zap.NewNop()}
	rec := httptest.NewRecorder()
	h.writeError(rec, redirectTo(4))
	assert.Equal(t, "/signup/step-4", rec.Header().Get("Location"))
}
