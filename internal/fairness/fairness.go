// Package fairness derives verifiable uniform values from a committed seed
// triple.
//
// The construction is part of the public verification contract:
//
//	h = HMAC-SHA256(key = serverSeed, msg = clientSeed ":" nonce ":" cursor)
//	u = (big-endian uint64 of h[0:8] >> 11) / 2^53
//
// nonce and cursor are written as base-10 integers. The top 53 bits map onto
// the float64 grid in [0,1) exactly, so no value is favoured.
package fairness

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	serverSeedBytes = 32
	clientSeedBytes = 16
	floatBits       = 53
	floatScale      = 1 << floatBits
)

// Digest returns the raw HMAC for one cursor position.
func Digest(serverSeed, clientSeed string, nonce, cursor uint64) []byte {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(clientSeed))
	h.Write([]byte{':'})
	h.Write(strconv.AppendUint(nil, nonce, 10))
	h.Write([]byte{':'})
	h.Write(strconv.AppendUint(nil, cursor, 10))
	return h.Sum(nil)
}

// Float returns the cursor-th uniform value in [0,1) for the seed triple.
func Float(serverSeed, clientSeed string, nonce, cursor uint64) float64 {
	sum := Digest(serverSeed, clientSeed, nonce, cursor)
	return bytesToFloat(sum)
}

func bytesToFloat(b []byte) float64 {
	v := binary.BigEndian.Uint64(b[:8]) >> (64 - floatBits)
	return float64(v) / floatScale
}

// HashSeed is the commitment published before play.
func HashSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether serverSeed hashes to the published value.
func VerifyCommitment(serverSeed, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSeed(serverSeed)), []byte(hash)) == 1
}

func GenerateServerSeed() (string, error) {
	return randomHex(serverSeedBytes)
}

func GenerateClientSeed() (string, error) {
	return randomHex(clientSeedBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
