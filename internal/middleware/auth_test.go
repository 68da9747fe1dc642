package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{
			name:           "Missing authorization header",
			header:         "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Unrecognized token without Bearer prefix",
			header:         "InvalidToken",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Wrong key",
			header:         "Bearer wrong-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid key with Bearer prefix",
			header:         "Bearer secret-key-1",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Valid key without Bearer prefix",
			header:         "secret-key-1",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			c.Request = req

			handler := func(c *gin.Context) {
				c.Status(http.StatusOK)
			}

			KeyAuth([]string{"secret-key-1"})(c)
			if !c.IsAborted() {
				handler(c)
			}

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestKeyAuthSetsContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer secret-key-1")
	c.Request = req

	handler := func(c *gin.Context) {
		key, exists := GetAPIKey(c)
		assert.True(t, exists)
		assert.Equal(t, "secret-key-1", key)
		c.Status(http.StatusOK)
	}

	KeyAuth([]string{"secret-key-1"})(c)
	if !c.IsAborted() {
		handler(c)
	}

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestKeyAllowed(t *testing.T) {
	allowed := []string{"key-a", "key-bb"}

	assert.True(t, keyAllowed("key-a", allowed))
	assert.True(t, keyAllowed("key-bb", allowed))
	assert.False(t, keyAllowed("key-c", allowed))
	assert.False(t, keyAllowed("", allowed))
}
