package dice

import (
	"crypto/rand"
	"math/big"
)

// Source is the randomness provider for die draws.
//
// Implementations MUST be safe for concurrent use; a Formula holds no
// randomness state of its own and may be shared across goroutines.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// cryptoSource implements Source using crypto/rand. Stateless, so trivially
// safe for concurrent use.
type cryptoSource struct{}

// NewCryptoSource returns the default Source, backed by crypto/rand.
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a uniformly distributed int in [0, n).
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" otherwise.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(v.Int64())
}
