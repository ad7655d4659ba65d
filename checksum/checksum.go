package checksum

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Verifier hashes whatever is written to it and compares the result with the
// md5 the API advertised for the file.
type Verifier struct {
	want []byte
	h    hash.Hash
}

// NewVerifier returns nil, and no error, when the post has no md5 to check.
func NewVerifier(md5hex string) (*Verifier, error) {
	if md5hex == "" {
		return nil, nil
	}
	want, err := hex.DecodeString(strings.ToLower(md5hex))
	if err != nil || len(want) != md5.Size {
		return nil, fmt.Errorf("invalid md5 %q", md5hex)
	}
	return &Verifier{want: want, h: md5.New()}, nil
}

func (v *Verifier) Write(p []byte) (int, error) {
	return v.h.Write(p)
}

func (v *Verifier) Verify() bool {
	return hmac.Equal(v.h.Sum(nil), v.want)
}

// Sum is the hex md5 of what was written so far.
func (v *Verifier) Sum() string {
	return hex.EncodeToString(v.h.Sum(nil))
}

// Sum returns the hex md5 of data.
func Sum(data []byte) string {
	s := md5.Sum(data)
	return hex.EncodeToString(s[:])
}
