package service

import (
	"crypto/rand"
	"io"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
)

const (
	tokenAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	tokenRandWidth = 6
	// largest multiple of len(tokenAlphabet) that fits in a byte
	tokenRandLimit = 252
)

// TokenMinter produces short human-typeable attendance codes of the form RRRRRR-TTTTTTTT,
// a random segment followed by the base36 millisecond timestamp.
type TokenMinter struct {
	random io.Reader
	now    func() time.Time
}

// NewTokenMinter builds a minter backed by crypto/rand.
func NewTokenMinter() *TokenMinter {
	return &TokenMinter{random: rand.Reader, now: time.Now}
}

// Mint returns a fresh code. The result only contains [0-9A-Z-] and is never empty.
func (m *TokenMinter) Mint() (string, error) {
	var b strings.Builder
	b.Grow(tokenRandWidth + 10)

	buf := make([]byte, tokenRandWidth)
	for b.Len() < tokenRandWidth {
		n, err := io.ReadFull(m.random, buf[:tokenRandWidth-b.Len()])
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrMintFailure.Code, appErrors.ErrMintFailure.Status, appErrors.ErrMintFailure.Message)
		}
		for _, v := range buf[:n] {
			if v >= tokenRandLimit {
				continue
			}
			b.WriteByte(tokenAlphabet[int(v)%len(tokenAlphabet)])
		}
	}
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(strconv.FormatInt(m.now().UnixMilli(), 36)))
	return b.String(), nil
}

// NormalizeCode canonicalises user input before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
