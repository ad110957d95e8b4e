package pakhash

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Algorithm names the digest computed over decompressed entries. SHA1 is what
// existing hash lists are keyed on; the others are for new lists only.
type Algorithm string

const (
	SHA1       Algorithm = "sha1"
	SHA256     Algorithm = "sha256"
	SHA3_256   Algorithm = "sha3-256"
	BLAKE2b256 Algorithm = "blake2b-256"
	BLAKE3     Algorithm = "blake3"
)

var algorithms = []Algorithm{SHA1, SHA256, SHA3_256, BLAKE2b256, BLAKE3}

// Algorithms lists the supported digest names.
func Algorithms() []Algorithm {
	return append([]Algorithm(nil), algorithms...)
}

// ParseAlgorithm accepts a digest name case-insensitively. An empty name
// selects SHA1.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return SHA1, nil
	}
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range algorithms {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown digest algorithm: %q", name)
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New()
	case SHA3_256:
		return sha3.New256()
	case BLAKE2b256:
		h, err := blake2b.New256(nil)
		if err != nil {
			// only a key longer than 64 bytes fails
			panic(err)
		}
		return h
	case BLAKE3:
		return blake3.New()
	default:
		return sha1.New()
	}
}

func (a Algorithm) String() string {
	return string(a)
}
