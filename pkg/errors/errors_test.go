package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := WithCode(CodeNotFound, "audio history not found")
	assert.True(t, stderrs.Is(err, ErrNotFound))
	assert.False(t, stderrs.Is(err, ErrStorage))

	wrapped := fmt.Errorf("delete: %w", err)
	assert.True(t, stderrs.Is(wrapped, ErrNotFound))
}

func TestGetCodeWalksChain(t *testing.T) {
	inner := WrapCode(stderrs.New("disk full"), CodeStorage, "write failed")
	outer := &Error{Message: "store artifact", Err: inner}

	assert.Equal(t, CodeStorage, GetCode(outer))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(outer))
	assert.Equal(t, "disk full", stderrs.Unwrap(inner).Error())

	e, ok := As(outer)
	assert.True(t, ok)
	assert.Equal(t, "write failed", e.Message)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[int]int{
		CodeValidation:          http.StatusBadRequest,
		CodeUnauthorized:        http.StatusUnauthorized,
		CodeNotFound:            http.StatusNotFound,
		CodeConflict:            http.StatusConflict,
		CodeProvider:            http.StatusBadGateway,
		CodeProviderUnavailable: http.StatusServiceUnavailable,
		CodeInternal:            http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(WithCode(code, "x")), "code %d", code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrs.New("plain")))
}

func TestWithContextCopies(t *testing.T) {
	base := WithCode(CodeValidation, "text too long")
	withField := base.WithContext("field", "text").WithContext("reason", "too_long")

	assert.Empty(t, base.Context)
	assert.Equal(t, "text", withField.Value("field"))
	assert.Equal(t, "too_long", withField.Value("reason"))
	assert.Equal(t, "", withField.Value("missing"))
}
