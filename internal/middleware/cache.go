package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// PrivateCache lets browsers keep signed media for maxAge without shared caches storing it.
func PrivateCache(maxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds())))
		c.Next()
	}
}

// NoStore marks API responses as uncacheable.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
