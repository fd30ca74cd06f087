// Package auth provides session tokens, merge codes and request auth context.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Merge code format: two groups of 3 random bytes, upper-case hex, joined by "-".
// Example: AB12CD-34EF56
const mergeCodeGroupBytes = 3

// Argon2id parameters for merge code hashing. The salt is a server-side
// pepper so the hash is deterministic and can be looked up by equality.
const (
	mergeCodeTime    = 2
	mergeCodeMemory  = 19 * 1024
	mergeCodeThreads = 1
	mergeCodeKeyLen  = 32
)

const defaultMergeCodePepper = "fileforge/merge-code/v1"

var mergeCodeRegex = regexp.MustCompile(`^[0-9A-F]{6}-[0-9A-F]{6}$`)

// GenerateMergeCode returns a new human-presentable merge code.
func GenerateMergeCode() (string, error) {
	groups := make([]string, 2)
	for i := range groups {
		b := make([]byte, mergeCodeGroupBytes)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate merge code: %w", err)
		}
		groups[i] = strings.ToUpper(hex.EncodeToString(b))
	}
	return strings.Join(groups, "-"), nil
}

// NormalizeMergeCode trims whitespace and upper-cases a user-supplied code.
func NormalizeMergeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidMergeCodeFormat checks a normalized code against the issued format.
func ValidMergeCodeFormat(code string) bool {
	return mergeCodeRegex.MatchString(code)
}

// CodeHasher derives the stored hash of a merge code.
type CodeHasher struct {
	pepper []byte
}

// NewCodeHasher creates a CodeHasher. An empty pepper uses a built-in default.
func NewCodeHasher(pepper string) *CodeHasher {
	if pepper == "" {
		pepper = defaultMergeCodePepper
	}
	return &CodeHasher{pepper: []byte(pepper)}
}

// Hash returns the hex-encoded argon2id hash of the normalized code.
func (h *CodeHasher) Hash(code string) string {
	key := argon2.IDKey(
		[]byte(NormalizeMergeCode(code)),
		h.pepper,
		mergeCodeTime,
		mergeCodeMemory,
		mergeCodeThreads,
		mergeCodeKeyLen,
	)
	return hex.EncodeToString(key)
}
