package transport

import (
	"sync"
	"time"
)

// yeastAlphabet is the 64-character alphabet Engine.IO clients use for the
// "t" cache-busting query parameter.
const yeastAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

// Yeast generates anti-cache tokens: the current millisecond timestamp in
// base 64, suffixed with a counter when called twice within the same
// millisecond. Tokens never repeat for the lifetime of a Yeast.
type Yeast struct {
	mu   sync.Mutex
	now  func() time.Time
	prev string
	seed int64
}

// NewYeast returns a token generator. A nil clock uses time.Now.
func NewYeast(now func() time.Time) *Yeast {
	if now == nil {
		now = time.Now
	}
	return &Yeast{now: now}
}

// Next returns the next token.
func (y *Yeast) Next() string {
	y.mu.Lock()
	defer y.mu.Unlock()

	stamp := yeastEncode(y.now().UnixMilli())
	if stamp != y.prev {
		y.prev = stamp
		y.seed = 0
		return stamp
	}
	token := stamp + "." + yeastEncode(y.seed)
	y.seed++
	return token
}

func yeastEncode(n int64) string {
	if n <= 0 {
		return string(yeastAlphabet[0])
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = yeastAlphabet[n%int64(len(yeastAlphabet))]
		n /= int64(len(yeastAlphabet))
	}
	return string(buf[i:])
}
