// Package escrow tracks multi-party escrow transactions: the entity model,
// the status state machine, the authorization rules gating each transition,
// and an in-memory store that makes transitions safe under concurrent
// command invocations. No funds move; only transaction state is managed.
package escrow

import "strings"

// Status is the lifecycle state of an escrow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOpen      Status = "open"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IdentityKind distinguishes the two ways a party can be identified: by a
// stable numeric account id or by a display handle string.
type IdentityKind string

const (
	KindByID     IdentityKind = "by_id"
	KindByHandle IdentityKind = "by_handle"
)

// Identity is a value type naming one party. Exactly one of ID or Handle is
// meaningful, depending on Kind. There is no cross-kind equality: an actor
// known only by numeric id never equals a party recorded only by handle.
type Identity struct {
	Kind   IdentityKind
	ID     int64
	Handle string
}

// ByID builds an identity from a stable numeric account id.
func ByID(id int64) Identity {
	return Identity{Kind: KindByID, ID: id}
}

// ByHandle builds an identity from a display handle. The handle is
// normalized to carry the leading "@" marker; comparison stays
// case-sensitive.
func ByHandle(handle string) Identity {
	return Identity{Kind: KindByHandle, Handle: NormalizeHandle(handle)}
}

// Equal compares two identities. Same-kind only.
func (a Identity) Equal(b Identity) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindByID:
		return a.ID == b.ID
	case KindByHandle:
		return a.Handle != "" && a.Handle == b.Handle
	default:
		return false
	}
}

// NormalizeHandle trims whitespace and ensures the leading "@" marker.
// Returns "" for an empty handle.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if handle == "" || handle == "@" {
		return ""
	}
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	return handle
}

// Actor is the authenticated chat user attempting an action. The transport
// knows both credentials for the same person, so an actor carries the stable
// id and, when the platform exposes one, the display handle.
type Actor struct {
	ID     int64
	Handle string
}

// Escrow is one tracked transaction. Parties, amount, and description are
// immutable after creation; only Status changes, and only through the store.
// Amount is an opaque label, never parsed as a number.
type Escrow struct {
	ID          int64
	Buyer       Identity
	Seller      Identity
	Amount      string
	Description string
	Status      Status
}
