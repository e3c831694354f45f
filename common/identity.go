package common

import (
	"fmt"
	"strconv"
)

const (
	PrefixLength = 4
)

// RoleType defines which side of a trade an actor is on.
type RoleType string

const (
	RoleBuyer  RoleType = "buyer"
	RoleSeller RoleType = "seller"
)

const (
	buyerPrefix  = "b___"
	sellerPrefix = "s___"
)

// Valid reports whether r is a known role.
func (r RoleType) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Actor is an identity from the marketplace directory (numeric id plus role)
// that maps to a messaging party id.
type Actor struct {
	Id   int64
	Role RoleType
}

// ToPartyId converts an Actor to the party id used by conversations.
//
//	Actor{Id: 42, Role: RoleBuyer}.ToPartyId()  => "b___42"
//	Actor{Id: 7, Role: RoleSeller}.ToPartyId()  => "s___7"
func (a *Actor) ToPartyId() (string, error) {
	if a.Id <= 0 {
		return "", fmt.Errorf("invalid actor id: %d", a.Id)
	}
	switch a.Role {
	case RoleBuyer:
		return buyerPrefix + strconv.FormatInt(a.Id, 10), nil
	case RoleSeller:
		return sellerPrefix + strconv.FormatInt(a.Id, 10), nil
	default:
		return "", fmt.Errorf("failed to map actor to party id, role: %s", a.Role)
	}
}

// FromPartyId parses a party id back into an Actor.
func (a *Actor) FromPartyId(partyId string) error {
	if a == nil {
		return fmt.Errorf("actor is nil")
	}
	if len(partyId) < PrefixLength+1 {
		return fmt.Errorf("invalid party id: %q", partyId)
	}
	prefix, idStr := partyId[:PrefixLength], partyId[PrefixLength:]
	switch prefix {
	case buyerPrefix:
		a.Role = RoleBuyer
	case sellerPrefix:
		a.Role = RoleSeller
	default:
		return fmt.Errorf("unknown prefix: %q", prefix)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid id: %q", idStr)
	}
	a.Id = id
	return nil
}

// RoleOf returns the role encoded in a party id, or "" when it is malformed.
func RoleOf(partyId string) RoleType {
	var a Actor
	if err := a.FromPartyId(partyId); err != nil {
		return ""
	}
	return a.Role
}
