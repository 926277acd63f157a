package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"count-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func writeErrorStatus(err error) int {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, err)
	return w.Code
}

func TestWriteErrorStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest,
		writeErrorStatus(models.NewValidationError("name", "must not be empty")))
	assert.Equal(t, http.StatusNotFound,
		writeErrorStatus(models.NewNotFoundError("session", 7)))
	assert.Equal(t, http.StatusConflict,
		writeErrorStatus(models.NewInvalidStateError(7, models.SessionStatusDraft, "resume")))

	// A transition that exhausts its optimistic retries surfaces the conflict
	// itself; clients must see 409, not a 500.
	assert.Equal(t, http.StatusConflict,
		writeErrorStatus(models.NewConcurrencyConflict(7, models.SessionStatusCompleted)))

	assert.Equal(t, http.StatusInternalServerError,
		writeErrorStatus(errors.New("kafka write failed")))
}

func TestWriteErrorUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("failed to approve session %d: %w", 7,
		models.NewConcurrencyConflict(7, models.SessionStatusCompleted))
	assert.Equal(t, http.StatusConflict, writeErrorStatus(wrapped))
}
