// Package object provides the domain types that describe repository
// objects managed through the lifecycle machinery: typed identities,
// object definitions, and the content producer port that renders
// type-specific payloads.
package object

import (
	"errors"
	"fmt"
	"strings"
)

// Common identity validation errors.
var (
	// ErrNoName indicates an identity was constructed without a name.
	ErrNoName = errors.New("object identity requires a name")

	// ErrNoType indicates an identity was constructed without a type.
	ErrNoType = errors.New("object identity requires a type")
)

// Identity uniquely names a repository object. Two identities refer to
// the same object exactly when their normalized type, name, and sub
// group all match; the normalized form is what locks, sessions, and
// log lines carry.
type Identity struct {
	objType  Type
	name     string
	subGroup string
}

// NewIdentity creates a normalized identity for a top-level object.
func NewIdentity(objType Type, name string) (Identity, error) {
	return NewGroupedIdentity(objType, name, "")
}

// NewGroupedIdentity creates a normalized identity for an object that
// lives inside a container, such as a function module inside its
// function group. An empty subGroup yields a top-level identity.
func NewGroupedIdentity(objType Type, name, subGroup string) (Identity, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return Identity{}, ErrNoName
	}
	if strings.TrimSpace(string(objType)) == "" || objType == TypeUnspecified {
		return Identity{}, fmt.Errorf("%w: object %s", ErrNoType, name)
	}

	return Identity{
		objType:  ParseType(string(objType)),
		name:     name,
		subGroup: strings.ToUpper(strings.TrimSpace(subGroup)),
	}, nil
}

// Type returns the normalized object type.
func (id Identity) Type() Type { return id.objType }

// Name returns the normalized object name.
func (id Identity) Name() string { return id.name }

// SubGroup returns the normalized containing group, or "" for
// top-level objects.
func (id Identity) SubGroup() string { return id.subGroup }

// IsZero reports whether the identity is the zero value.
func (id Identity) IsZero() bool { return id == Identity{} }

// Key returns the canonical "TYPE/NAME" (or "TYPE/SUBGROUP/NAME" for
// grouped objects) form used as the lock registry key and in log
// attributes. Equal identities always produce equal keys.
func (id Identity) Key() string {
	if id.subGroup != "" {
		return fmt.Sprintf("%s/%s/%s", id.objType, id.subGroup, id.name)
	}
	return fmt.Sprintf("%s/%s", id.objType, id.name)
}

// String returns the canonical key form.
func (id Identity) String() string { return id.Key() }
