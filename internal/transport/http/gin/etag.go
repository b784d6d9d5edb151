package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// writeJSONWithETag writes v with a content hash ETag and answers 304 when
// the client already holds that representation.
func writeJSONWithETag(c *gin.Context, v any, cacheControl string) {
	b, err := json.Marshal(v)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	sum := sha256.Sum256(b)
	tag := `W/"` + hex.EncodeToString(sum[:16]) + `"`

	c.Header("ETag", tag)
	if cacheControl != "" {
		c.Header("Cache-Control", cacheControl)
	}

	for _, inm := range strings.Split(c.GetHeader("If-None-Match"), ",") {
		if strings.TrimSpace(inm) == tag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}
