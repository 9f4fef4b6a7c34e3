// Package domain holds typed identifiers shared across modules.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "geosats/pkg/domain-errors"
)

// Typed IDs keep bounty, escrow and event identifiers from being mixed up.
type (
	BountyID uuid.UUID
	EscrowID uuid.UUID
	EventID  uuid.UUID
)

func NewBountyID() BountyID { return BountyID(uuid.New()) }
func NewEscrowID() EscrowID { return EscrowID(uuid.New()) }
func NewEventID() EventID   { return EventID(uuid.New()) }

func (id BountyID) String() string { return uuid.UUID(id).String() }
func (id EscrowID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string  { return uuid.UUID(id).String() }

func (id BountyID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EscrowID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id BountyID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EscrowID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *BountyID) UnmarshalText(b []byte) error {
	parsed, err := ParseBountyID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EscrowID) UnmarshalText(b []byte) error {
	parsed, err := ParseEscrowID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func ParseBountyID(s string) (BountyID, error) {
	u, err := parseUUID(s, "bounty id")
	return BountyID(u), err
}

func ParseEscrowID(s string) (EscrowID, error) {
	u, err := parseUUID(s, "escrow id")
	return EscrowID(u), err
}

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be nil")
	}
	return u, nil
}
