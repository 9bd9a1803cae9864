package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("add item: %w", NotFound("product %s not found", "p1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrOutOfStock))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "product p1 not found", Message(err))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(OutOfStock(2)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrEmptyCart))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidTransition("shipped", "cancelled")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden("no")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(GatewayFailure("timeout")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, "internal server error", Message(errors.New("boom")))
}
