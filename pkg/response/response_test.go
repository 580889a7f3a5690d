package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(c *gin.Context)
		status int
		kind   string
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "bad") }, http.StatusBadRequest, KindBadRequest},
		{"not found", func(c *gin.Context) { NotFound(c, "missing") }, http.StatusNotFound, KindNotFound},
		{"conflict", func(c *gin.Context) { Conflict(c, "dup") }, http.StatusConflict, KindConflict},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "no") }, http.StatusForbidden, KindForbidden},
		{"too many", TooManyRequests, http.StatusTooManyRequests, KindTooMany},
		{"internal", func(c *gin.Context) { InternalError(c, errors.New("db down")) }, http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tt.write(c)

			assert.Equal(t, tt.status, w.Code)
			assert.True(t, c.IsAborted())
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Code)
			assert.Equal(t, tt.kind, body.Error)
			assert.NotContains(t, body.Message, "db down")
		})
	}
}

func TestSuccessWritesRawData(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Created(c, gin.H{"userId": 1})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"userId":1}`, w.Body.String())
}
