package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/gin-gonic/gin"
)

// ContextAdminID is the gin context key holding the admin resolved from the path.
const ContextAdminID = "adminID"

// Sealer encrypts secrets before they are persisted.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
}

var errSealFailed = errors.New("encrypt secret failed")

func adminIDFrom(c *gin.Context) uint64 {
	if v, ok := c.Get(ContextAdminID); ok {
		if id, okID := v.(uint64); okID {
			return id
		}
	}
	return 0
}

func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// sealOptional encrypts a key field of a patch. Nil stays nil, blank clears.
func sealOptional(box Sealer, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return &trimmed, nil
	}
	sealed, errSeal := box.Encrypt(trimmed)
	if errSeal != nil {
		return nil, errSealFailed
	}
	return &sealed, nil
}

func writeStoreError(c *gin.Context, err error, op string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}
