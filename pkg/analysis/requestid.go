package analysis

import (
	"math/rand"
	"strconv"
	"time"
)

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRequestID returns a correlation id linking an upload to its
// progress stream: millisecond timestamp, dash, 9 random base-36
// characters. Ids are never reused across submission attempts.
func NewRequestID() string {
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = requestIDAlphabet[rand.Intn(len(requestIDAlphabet))]
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + string(suffix)
}
