package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestHTTPStatusDomainKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{InvalidArgument("bad input"), http.StatusBadRequest},
		{Unauthenticated("missing token"), http.StatusUnauthorized},
		{PermissionDenied("premium only"), http.StatusForbidden},
		{NotFound("no such profile"), http.StatusNotFound},
		{AlreadyExists("already swiped"), http.StatusConflict},
		{ResourceExhausted("daily limit reached"), http.StatusTooManyRequests},
		{Unavailable("try later"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		status, msg := HTTPStatus(tc.err)
		assert.Equal(t, tc.status, status)
		assert.NotEmpty(t, msg)
	}
}

func TestHTTPStatusWrappedCauseHidden(t *testing.T) {
	cause := fmt.Errorf("dial tcp 10.0.0.1:3306: connection refused")
	err := NotFound("no such user").Wrap(cause)

	status, msg := HTTPStatus(fmt.Errorf("load user: %w", err))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no such user", msg)
	assert.NotContains(t, msg, "10.0.0.1")
}

func TestHTTPStatusInfrastructureErrors(t *testing.T) {
	status, _ := HTTPStatus(gorm.ErrRecordNotFound)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = HTTPStatus(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)

	status, msg := HTTPStatus(fmt.Errorf("something odd"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", msg)
}
