package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/itdd/backend/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size. Requests that
// declare a larger Content-Length are rejected before the handler runs; chunked
// bodies are cut off by http.MaxBytesReader and surface as a bind error.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeTooLarge,
				"Request body exceeds maximum allowed size", c.GetString(RequestIDKey))
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
