package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("instance", "x"), http.StatusNotFound},
		{InvalidInput("name", "required"), http.StatusBadRequest},
		{Conflict("stale"), http.StatusConflict},
		{New(CodeUnauthorized, "no"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{New(CodeRateLimited, "slow down"), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "failed to save")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to save: disk full", err.Error())
	assert.Nil(t, Wrap(nil, CodeInternal, "unused"))
}

func TestCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("approve: %w", NotFound("task", "t1"))

	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, &Error{Code: CodeNotFound}))
	assert.False(t, errors.Is(err, &Error{Code: CodeConflict}))
}
