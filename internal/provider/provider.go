// Package provider defines the identity of a bookable party. A provider is
// either a doctor or an institute; the two are mutually exclusive everywhere
// in the system.
package provider

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindDoctor    Kind = "doctor"
	KindInstitute Kind = "institute"
)

var ErrInvalidKind = errors.New("provider kind must be doctor or institute")

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDoctor, KindInstitute:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Ref identifies one provider.
type Ref struct {
	Kind Kind
	ID   uuid.UUID
}

// Key is a stable string form used for lock keys and map keys.
func (r Ref) Key() string {
	return string(r.Kind) + ":" + r.ID.String()
}

func (r Ref) IsZero() bool {
	return r.ID == uuid.Nil
}
