package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrAuthenticationFailed
		}
		return err
	}
	return nil
}

var equalizerHash = sync.OnceValue(func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte("fis-login-timing"), passwordHashCost())
	return string(h)
})

// burnCompare spends the same time as a real comparison so a missing
// account answers as slowly as a wrong password.
func burnCompare(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(equalizerHash()), []byte(password))
}

type bcryptPasswords struct{}

func (bcryptPasswords) HashPassword(password string) (string, error) {
	return HashPassword(password)
}

func (bcryptPasswords) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}
