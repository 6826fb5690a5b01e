package token

import (
	"crypto/sha256"
	"time"

	"github.com/coursehub/coursehub/random"
)

const (
	ScopeActivation = "activation"
	ScopeRecovery   = "recovery"
)

// Mailer delivers token emails. Implemented by the email package.
type Mailer interface {
	SendActivation(to string, token string, timeout string) error
	SendRecovery(to string, token string) error
}

type Token struct {
	Hash   []byte    `db:"token_hash"`
	UserID string    `db:"user_id"`
	Scope  string    `db:"scope"`
	Expiry time.Time `db:"expiry"`
}

// Generate returns the plaintext sent to the user and the row to persist.
// Only the hash is stored.
func Generate(userID string, scope string, timeout time.Duration) (string, Token) {
	plain := random.String(26)
	hash := sha256.Sum256([]byte(plain))

	tok := Token{
		Hash:   hash[:],
		UserID: userID,
		Scope:  scope,
		Expiry: time.Now().UTC().Add(timeout),
	}

	return plain, tok
}

func HashOf(plain string) []byte {
	hash := sha256.Sum256([]byte(plain))
	return hash[:]
}
