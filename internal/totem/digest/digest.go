// Package digest derives the content fingerprints shared by the authority
// gate and the audit chain.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ContentPrefix tags content hashes so they are distinguishable from chain
// hashes in raw evidence.
const ContentPrefix = "SHA256-"

// Content returns the short, upper-case content hash carried in proof headers,
// e.g. "SHA256-9F86D081884C7D65".
func Content(text string) string {
	sum := sha256.Sum256([]byte(text))
	return ContentPrefix + strings.ToUpper(hex.EncodeToString(sum[:8]))
}

// Hex returns the full lowercase SHA-256 of the parts. Each part is framed
// as "<byte length>:<part>|" so no two part lists share an encoding, even
// when a part contains the separator.
func Hex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
