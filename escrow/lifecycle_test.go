package escrow

import (
	"errors"
	"testing"
)

func pendingEscrow() Escrow {
	return Escrow{
		ID:          1,
		Buyer:       ByID(101),
		Seller:      ByHandle("@bob"),
		Amount:      "50",
		Description: "widget",
		Status:      StatusPending,
	}
}

func TestDecide_HappyPathTransitions(t *testing.T) {
	buyer := Actor{ID: 101, Handle: "@alice"}
	seller := Actor{ID: 202, Handle: "@bob"}

	cases := []struct {
		name   string
		status Status
		actor  Actor
		action Action
		want   Status
	}{
		{name: "seller confirms pending", status: StatusPending, actor: seller, action: ActionSellerConfirm, want: StatusOpen},
		{name: "buyer confirms receipt", status: StatusOpen, actor: buyer, action: ActionBuyerConfirmReceipt, want: StatusConfirmed},
		{name: "seller releases funds", status: StatusConfirmed, actor: seller, action: ActionSellerRelease, want: StatusCompleted},
		{name: "buyer cancels pending", status: StatusPending, actor: buyer, action: ActionCancel, want: StatusCancelled},
		{name: "seller cancels open", status: StatusOpen, actor: seller, action: ActionCancel, want: StatusCancelled},
		{name: "buyer cancels confirmed", status: StatusConfirmed, actor: buyer, action: ActionCancel, want: StatusCancelled},
	}
	for _, tc := range cases {
		e := pendingEscrow()
		e.Status = tc.status
		d, err := Decide(e, tc.actor, tc.action, nil)
		if err != nil {
			t.Fatalf("%s: Decide() error = %v", tc.name, err)
		}
		if d.From != tc.status || d.To != tc.want {
			t.Fatalf("%s: decision = %+v, want %s -> %s", tc.name, d, tc.status, tc.want)
		}
	}
}

func TestDecide_InvalidStateRejections(t *testing.T) {
	buyer := Actor{ID: 101, Handle: "@alice"}
	seller := Actor{ID: 202, Handle: "@bob"}

	cases := []struct {
		name   string
		status Status
		actor  Actor
		action Action
	}{
		{name: "seller confirm on open", status: StatusOpen, actor: seller, action: ActionSellerConfirm},
		{name: "buyer confirm on pending", status: StatusPending, actor: buyer, action: ActionBuyerConfirmReceipt},
		{name: "release on pending", status: StatusPending, actor: seller, action: ActionSellerRelease},
		{name: "release on open", status: StatusOpen, actor: seller, action: ActionSellerRelease},
	}
	for _, tc := range cases {
		e := pendingEscrow()
		e.Status = tc.status
		if _, err := Decide(e, tc.actor, tc.action, nil); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: Decide() error = %v, want ErrInvalidState", tc.name, err)
		}
	}
}

func TestDecide_TerminalBeatsEverything(t *testing.T) {
	seller := Actor{ID: 202, Handle: "@bob"}
	for _, action := range []Action{ActionSellerConfirm, ActionBuyerConfirmReceipt, ActionSellerRelease, ActionCancel} {
		e := pendingEscrow()
		e.Status = StatusCompleted
		if _, err := Decide(e, seller, action, nil); !errors.Is(err, ErrAlreadyTerminal) {
			t.Fatalf("%s on completed: Decide() error = %v, want ErrAlreadyTerminal", action, err)
		}
	}
}

func TestDecide_WrongRoleRejections(t *testing.T) {
	stranger := Actor{ID: 999, Handle: "@mallory"}

	cases := []struct {
		name   string
		status Status
		action Action
	}{
		{name: "stranger seller confirm", status: StatusPending, action: ActionSellerConfirm},
		{name: "stranger buyer confirm", status: StatusOpen, action: ActionBuyerConfirmReceipt},
		{name: "stranger release", status: StatusConfirmed, action: ActionSellerRelease},
		{name: "stranger cancel", status: StatusPending, action: ActionCancel},
	}
	for _, tc := range cases {
		e := pendingEscrow()
		e.Status = tc.status
		if _, err := Decide(e, stranger, tc.action, nil); !errors.Is(err, ErrWrongRole) {
			t.Fatalf("%s: Decide() error = %v, want ErrWrongRole", tc.name, err)
		}
	}
}

func TestDecide_BuyerCannotActAsSeller(t *testing.T) {
	buyer := Actor{ID: 101, Handle: "@alice"}
	e := pendingEscrow()
	if _, err := Decide(e, buyer, ActionSellerConfirm, nil); !errors.Is(err, ErrWrongRole) {
		t.Fatalf("Decide() error = %v, want ErrWrongRole", err)
	}
}

func TestDecide_NumericIDNeverMatchesHandleOnlySeller(t *testing.T) {
	// An actor with no handle cannot pass the seller check by id while the
	// seller's handle is unresolved.
	e := pendingEscrow()
	if _, err := Decide(e, Actor{ID: 202}, ActionSellerConfirm, nil); !errors.Is(err, ErrWrongRole) {
		t.Fatalf("Decide() error = %v, want ErrWrongRole", err)
	}
}

func TestDecide_ResolvedHandleBindingWins(t *testing.T) {
	dir := NewDirectory()
	dir.Observe("@bob", 202)

	e := pendingEscrow()

	// The real account behind @bob passes even if its current handle
	// changed since creation.
	renamed := Actor{ID: 202, Handle: "@bob_new"}
	if _, err := Decide(e, renamed, ActionSellerConfirm, dir); err != nil {
		t.Fatalf("Decide() with resolved binding error = %v", err)
	}

	// Someone who acquired the old handle no longer matches.
	squatter := Actor{ID: 777, Handle: "@bob"}
	if _, err := Decide(e, squatter, ActionSellerConfirm, dir); !errors.Is(err, ErrWrongRole) {
		t.Fatalf("Decide() for reassigned handle error = %v, want ErrWrongRole", err)
	}
}

func TestDecide_RawHandleFallbackUntilResolved(t *testing.T) {
	dir := NewDirectory() // no bindings yet

	e := pendingEscrow()
	seller := Actor{ID: 202, Handle: "@bob"}
	if _, err := Decide(e, seller, ActionSellerConfirm, dir); err != nil {
		t.Fatalf("Decide() with unresolved handle error = %v", err)
	}
}

func TestDirectory_ObserveAndLookup(t *testing.T) {
	dir := NewDirectory()

	if _, ok := dir.Lookup("@bob"); ok {
		t.Fatal("Lookup() on empty directory should miss")
	}

	dir.Observe("bob", 202) // marker added on observe
	id, ok := dir.Lookup("@bob")
	if !ok || id != 202 {
		t.Fatalf("Lookup(@bob) = %d, %v, want 202, true", id, ok)
	}

	dir.Observe("@bob", 777) // reassignment overwrites
	if id, _ := dir.Lookup("@bob"); id != 777 {
		t.Fatalf("Lookup(@bob) after rebind = %d, want 777", id)
	}

	dir.Observe("", 1)
	dir.Observe("@x", 0)
	if _, ok := dir.Lookup("@x"); ok {
		t.Fatal("Lookup(@x) should miss for ignored observation")
	}
}
