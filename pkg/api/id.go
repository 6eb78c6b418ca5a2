package api

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	messageIDPrefix    = "msg_"
	invocationIDPrefix = "call_"
)

// NewMessageID generates a new message ID with the "msg_" prefix followed
// by 24 cryptographically random alphanumeric characters.
func NewMessageID() string {
	return messageIDPrefix + randomAlphanumeric(idLength)
}

// NewInvocationID generates a new invocation ID with the "call_" prefix.
// Used only for locally synthesized invocations; provider-issued call
// identifiers are passed through unchanged.
func NewInvocationID() string {
	return invocationIDPrefix + randomAlphanumeric(idLength)
}

// NewConversationID generates a UUID identifying one conversation.
func NewConversationID() string {
	return uuid.NewString()
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
