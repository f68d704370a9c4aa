// Package credman resolves the secret references used in the configuration
// file into their values.
//
// A reference is one of:
//
//	env:NAME              the environment variable NAME
//	dotenv:NAME           NAME from the loaded .env file, then the environment
//	keyring:service/item  an item of the OS keyring (or the fallback store)
//	keyring:item          an item under the resolver's service
//	keyring:              the resolver's user under its service
//
// Anything else is taken literally after $VAR expansion.
package credman

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/warpdl/rtfetch/pkg/credman/keyring"
)

// ErrUnset is returned when a referenced variable is not set.
var ErrUnset = errors.New("variable is not set")

// StoreFactory returns the secret store of a keyring service.
type StoreFactory func(service string) keyring.Store

// Resolver turns secret references into values.
type Resolver struct {
	// Service is the keyring service of references that name none.
	Service string
	// User is the keyring item of references that name none.
	User string

	dotenv map[string]string
	stores StoreFactory
	lookup func(string) (string, bool)
}

// NewResolver creates a resolver. stores may be nil, in which case keyring
// references use the OS keyring directly.
func NewResolver(stores StoreFactory) *Resolver {
	if stores == nil {
		stores = func(service string) keyring.Store { return keyring.NewKeyring(service) }
	}
	return &Resolver{
		Service: keyring.DefaultService,
		dotenv:  map[string]string{},
		stores: stores,
		lookup: os.LookupEnv,
	}
}

// LoadDotenv reads variables from the given .env files for dotenv:
// references. Missing files are ignored; the process environment is not
// modified.
func (r *Resolver) LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		vals, err := godotenv.Read(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		for k, v := range vals {
			r.dotenv[k] = v
		}
	}
	return nil
}

// Resolve returns the value ref points to.
func (r *Resolver) Resolve(ref string) (string, error) {
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return r.expand(ref), nil
	}
	switch scheme {
	case "env":
		if v, ok := r.lookup(rest); ok {
			return v, nil
		}
		return "", fmt.Errorf("env:%s: %w", rest, ErrUnset)
	case "dotenv":
		if v, ok := r.dotenv[rest]; ok {
			return v, nil
		}
		if v, ok := r.lookup(rest); ok {
			return v, nil
		}
		return "", fmt.Errorf("dotenv:%s: %w", rest, ErrUnset)
	case "keyring":
		service, item := SplitKeyringRef(rest, r.Service)
		if item == "" {
			item = r.User
		}
		if item == "" {
			return "", fmt.Errorf("keyring reference %q has no item", ref)
		}
		return r.stores(service).Get(item)
	default:
		// passwords may contain colons
		return r.expand(ref), nil
	}
}

// SplitKeyringRef splits "service/item" or "item" into its parts, using
// defaultService when no service is named.
func SplitKeyringRef(ref, defaultService string) (service, item string) {
	if defaultService == "" {
		defaultService = keyring.DefaultService
	}
	if s, i, ok := strings.Cut(ref, "/"); ok {
		if s == "" {
			s = defaultService
		}
		return s, i
	}
	return defaultService, ref
}

func (r *Resolver) expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(name string) string {
		v, _ := r.lookup(name)
		return v
	})
}
