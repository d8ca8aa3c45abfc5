package utils

import (
	"crypto/rand"
	"errors"
	"strings"
)

// TokenHookFunc defines the signature for the NewToken test hook.
// It returns a token and a boolean indicating whether to override the default generation.
type TokenHookFunc func() (token string, override bool)

// NewTokenHook is a package-level variable that tests can set to override NewToken behavior.
var NewTokenHook TokenHookFunc

// tokenBytes is the raw entropy per token. 16 bytes = 128 bits, enough to
// treat the token as an unguessable capability.
const tokenBytes = 16

// Crockford Base32 encoding alphabet (uppercase)
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Mapping from Crockford Base32 chars to their values
var crockfordDecodeMap map[byte]byte

func init() {
	crockfordDecodeMap = make(map[byte]byte, 32)
	for i := range crockfordAlphabet {
		crockfordDecodeMap[crockfordAlphabet[i]] = byte(i)
	}

	// Add lowercase variants
	lower := strings.ToLower(crockfordAlphabet)
	for i := range lower {
		if i >= 10 { // Skip numbers
			crockfordDecodeMap[lower[i]] = byte(i)
		}
	}

	// Add commonly confused characters
	crockfordDecodeMap['o'] = crockfordDecodeMap['O'] // o->O
	crockfordDecodeMap['i'] = crockfordDecodeMap['1'] // i->1
	crockfordDecodeMap['l'] = crockfordDecodeMap['1'] // l->1
}

// NewToken generates a fresh verification token: 16 random bytes encoded as
// Crockford Base32 (26 characters).
func NewToken() string {
	if NewTokenHook != nil {
		if token, override := NewTokenHook(); override {
			return token
		}
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; a zero token must never be
		// handed out as a capability.
		panic("token generation: " + err.Error())
	}
	return encodeCrockford(buf)
}

// encodeCrockford returns the Crockford Base32 (uppercase) representation of buf.
func encodeCrockford(buf []byte) string {
	// n bytes = 8n bits, requires ceil(8n/5) characters in Base32
	result := make([]byte, 0, (len(buf)*8+4)/5)
	var bits, offset uint

	for i := 0; i < len(buf); i++ {
		bits |= uint(buf[i]) << offset
		offset += 8

		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}

	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}

	return string(result)
}

// NormalizeToken canonicalizes a token received from a query string: strips
// hyphens/spaces, folds case and confusable characters via the Crockford
// decode map. Returns an error if the token contains invalid characters or
// has the wrong length.
func NormalizeToken(s string) (string, error) {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")

	// 16 bytes = 128 bits = 26 Base32 characters
	const encodedLen = (tokenBytes*8 + 4) / 5
	if len(s) != encodedLen {
		return "", errors.New("invalid token: wrong length")
	}

	normalized := make([]byte, encodedLen)
	for i := 0; i < len(s); i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return "", errors.New("invalid character in token")
		}
		normalized[i] = crockfordAlphabet[val]
	}
	return string(normalized), nil
}
