package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/geosocial/proximity/internal/model"
)

// PasswordHasher hashes and verifies user and group passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns model.ErrForbidden when password does not match hash.
	Compare(hash, password string) error
}

// BcryptHasher is the default PasswordHasher.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() BcryptHasher { return BcryptHasher{Cost: bcrypt.DefaultCost} }

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return model.ErrForbidden
	}
	return err
}
