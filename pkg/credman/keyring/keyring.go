// Package keyring stores server secrets in the operating system's native
// keyring, with a file-based fallback for hosts that have none.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service used when a reference names only
// the item.
const DefaultService = "rtfetch"

// ErrNotFound is returned when a store has no secret for an item.
var ErrNotFound = errors.New("secret not found")

// Store reads and writes secrets by item name.
type Store interface {
	Set(item, secret string) error
	Get(item string) (string, error)
	Delete(item string) error
}

// Keyring is a Store backed by the OS keyring under one service name.
type Keyring struct {
	Service string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultService
	}
	return &Keyring{Service: service}
}

func (k *Keyring) Set(item, secret string) error {
	if err := keyringSet(k.Service, item, secret); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", k.Service, item, err)
	}
	return nil
}

func (k *Keyring) Get(item string) (string, error) {
	secret, err := keyringGet(k.Service, item)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("keyring %s/%s: %w", k.Service, item, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s/%s: %w", k.Service, item, err)
	}
	return secret, nil
}

func (k *Keyring) Delete(item string) error {
	err := keyringDelete(k.Service, item)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring %s/%s: %w", k.Service, item, ErrNotFound)
	}
	return err
}
