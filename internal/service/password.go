package service

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCodec decides how passwords are written to the registry and how a
// login attempt is compared against the stored value.
type PasswordCodec interface {
	Encode(password string) (string, error)
	Matches(stored, password string) bool
}

// PlainCodec stores passwords as given.
type PlainCodec struct{}

func (PlainCodec) Encode(password string) (string, error) {
	return password, nil
}

func (PlainCodec) Matches(stored, password string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// BcryptCodec stores bcrypt hashes.
type BcryptCodec struct {
	Cost int
}

func (c BcryptCodec) Encode(password string) (string, error) {
	cost := c.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (BcryptCodec) Matches(stored, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// CodecByName maps the configured storage mode to a codec.
func CodecByName(name string) (PasswordCodec, error) {
	switch name {
	case "", "plain":
		return PlainCodec{}, nil
	case "bcrypt":
		return BcryptCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown password storage %q", name)
	}
}
