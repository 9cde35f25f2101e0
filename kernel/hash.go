package kernel

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

func Sha512(data string) string {
	return fmt.Sprintf("%032x", sha512.Sum512([]byte(data)))
}

// RandomToken returns a hex-encoded random token of n bytes of entropy.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
