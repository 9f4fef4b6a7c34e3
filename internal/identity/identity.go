// Package identity supplies the creator and claimer identifiers used by the
// bounty workflows. No signature verification happens here: a key-based
// identity is the hex public key the caller claims to hold.
package identity

import (
	"context"
	"encoding/hex"
	"strings"

	dErrors "geosats/pkg/domain-errors"
)

// AnonymousID is the identifier used when no key is presented.
const AnonymousID = "anonymous"

// PubKeyHexLen is the length of an x-only secp256k1 public key in hex.
const PubKeyHexLen = 64

var ErrInvalidPubKey = dErrors.New(dErrors.CodeValidation, "public key must be 64 hex characters")

// Provider resolves the identity acting on a request.
type Provider interface {
	Identify(ctx context.Context) (string, error)
}

// Anonymous always identifies as AnonymousID.
type Anonymous struct{}

func (Anonymous) Identify(context.Context) (string, error) {
	return AnonymousID, nil
}

// KeyBased identifies as a lower-cased hex public key.
type KeyBased struct {
	PubKey string
}

// NewKeyBased validates and normalises pubKey.
func NewKeyBased(pubKey string) (KeyBased, error) {
	k := strings.ToLower(strings.TrimSpace(pubKey))
	if len(k) != PubKeyHexLen {
		return KeyBased{}, ErrInvalidPubKey
	}
	if _, err := hex.DecodeString(k); err != nil {
		return KeyBased{}, dErrors.Wrap(err, dErrors.CodeValidation, ErrInvalidPubKey.Message)
	}
	return KeyBased{PubKey: k}, nil
}

func (k KeyBased) Identify(context.Context) (string, error) {
	if k.PubKey == "" {
		return "", ErrInvalidPubKey
	}
	return k.PubKey, nil
}

// FromHeader picks a provider from an optional header value. Empty means anonymous.
func FromHeader(value string) (Provider, error) {
	if strings.TrimSpace(value) == "" {
		return Anonymous{}, nil
	}
	k, err := NewKeyBased(value)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// Short abbreviates an identifier for display, e.g. in the event feed.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// FromID rebuilds a provider from an identifier already resolved upstream.
func FromID(id string) Provider {
	if id == "" || id == AnonymousID {
		return Anonymous{}
	}
	return KeyBased{PubKey: id}
}
