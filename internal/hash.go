package internal

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FastHash is a non-cryptographic hash for cache validators.
func FastHash(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// ETag is a strong entity tag for body.
func ETag(body []byte) string {
	return `"` + FastHash(body) + `"`
}
