package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns prefix-XXXXXXXX built from the first eight hex digits of a v4 UUID.
func New(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + id[:8]
}
