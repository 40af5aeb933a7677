package repository

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// contentDigest returns the hex blake3 digest of a file body.
func contentDigest(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// treeDigest hashes a path to digest mapping in path order.
func treeDigest(digests map[string]string) string {
	paths := make([]string, 0, len(digests))
	for p := range digests {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	h := blake3.New()
	for _, p := range paths {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(digests[p])
		_, _ = h.WriteString("\n")
	}

	return hex.EncodeToString(h.Sum(nil))
}
