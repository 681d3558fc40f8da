package escrow

// Action is a requested state transition on an escrow.
type Action string

const (
	// ActionSellerConfirm is the seller accepting participation
	// (pending -> open).
	ActionSellerConfirm Action = "seller_confirm"
	// ActionBuyerConfirmReceipt is the buyer confirming receipt of goods
	// (open -> confirmed).
	ActionBuyerConfirmReceipt Action = "buyer_confirm_receipt"
	// ActionSellerRelease is the seller releasing funds
	// (confirmed -> completed).
	ActionSellerRelease Action = "seller_release"
	// ActionCancel is either party cancelling before completion
	// (any non-terminal -> cancelled, record removed).
	ActionCancel Action = "cancel"
)

// Decision is the outcome of a permitted action: the status to transition
// to, committed separately via Store.CommitTransition.
type Decision struct {
	From Status
	To   Status
}

// Decide checks whether actor may perform action on the escrow as currently
// observed, and returns the resulting transition or a typed rejection
// (ErrAlreadyTerminal, ErrInvalidState, ErrWrongRole). It performs no
// mutation and no lookups beyond the optional resolver, so decision logic
// stays independently testable.
//
// The resolver carries the handle-to-id bindings the transport has observed;
// a binding for the seller's handle takes precedence over raw handle
// comparison. A nil resolver means handle comparison only.
func Decide(e Escrow, actor Actor, action Action, resolver Resolver) (Decision, error) {
	if e.Status.Terminal() {
		return Decision{}, ErrAlreadyTerminal
	}

	switch action {
	case ActionSellerConfirm:
		if e.Status != StatusPending {
			return Decision{}, ErrInvalidState
		}
		if !matchesSeller(e, actor, resolver) {
			return Decision{}, ErrWrongRole
		}
		return Decision{From: e.Status, To: StatusOpen}, nil

	case ActionBuyerConfirmReceipt:
		if e.Status != StatusOpen {
			return Decision{}, ErrInvalidState
		}
		if !matchesBuyer(e, actor) {
			return Decision{}, ErrWrongRole
		}
		return Decision{From: e.Status, To: StatusConfirmed}, nil

	case ActionSellerRelease:
		if e.Status != StatusConfirmed {
			return Decision{}, ErrInvalidState
		}
		if !matchesSeller(e, actor, resolver) {
			return Decision{}, ErrWrongRole
		}
		return Decision{From: e.Status, To: StatusCompleted}, nil

	case ActionCancel:
		if !matchesBuyer(e, actor) && !matchesSeller(e, actor, resolver) {
			return Decision{}, ErrWrongRole
		}
		return Decision{From: e.Status, To: StatusCancelled}, nil

	default:
		return Decision{}, ErrInvalidState
	}
}

func matchesBuyer(e Escrow, actor Actor) bool {
	return actor.ID != 0 && ByID(actor.ID).Equal(e.Buyer)
}

func matchesSeller(e Escrow, actor Actor, resolver Resolver) bool {
	if e.Seller.Kind != KindByHandle || e.Seller.Handle == "" {
		return false
	}
	if resolver != nil {
		if bound, ok := resolver.Lookup(e.Seller.Handle); ok {
			// Once the handle resolves to a stable id, the id is the
			// authority; a reassigned handle no longer matches.
			return actor.ID != 0 && actor.ID == bound
		}
	}
	return ByHandle(actor.Handle).Equal(e.Seller)
}
