package escrow

import "sort"

// Service binds the store and the decision logic into the operation surface
// the command gateway calls. Each mutating operation reads the current
// record, asks Decide for a transition, and commits it with the observed
// status as the precondition; a racing command makes the commit fail with
// ErrConflict instead of double-applying.
type Service struct {
	store    *Store
	resolver Resolver
}

func NewService(store *Store, resolver Resolver) *Service {
	return &Service{store: store, resolver: resolver}
}

// CreateEscrow opens a new pending escrow with the caller as buyer and the
// named handle as seller. Creation never fails.
func (s *Service) CreateEscrow(buyerID int64, sellerHandle string, amount string, description string) Escrow {
	return s.store.Create(ByID(buyerID), ByHandle(sellerHandle), amount, description)
}

// Get returns the escrow by id, or ErrNotFound.
func (s *Service) Get(id int64) (Escrow, error) {
	return s.store.Get(id)
}

// ListEscrows returns every escrow where the actor is the recorded buyer or
// the recorded seller, in insertion order, without duplicates.
func (s *Service) ListEscrows(actor Actor) []Escrow {
	var out []Escrow
	seen := make(map[int64]bool)
	for _, e := range s.store.ListFor(ByID(actor.ID)) {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	if actor.Handle != "" {
		for _, e := range s.store.ListFor(ByHandle(actor.Handle)) {
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}
	// Ids are allocated in insertion order, so sorting restores it across
	// the merged roles.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SellerConfirm moves a pending escrow to open. Only the recorded seller may
// do this.
func (s *Service) SellerConfirm(id int64, actor Actor) (Escrow, error) {
	return s.apply(id, actor, ActionSellerConfirm)
}

// BuyerConfirmReceipt moves an open escrow to confirmed. Only the recorded
// buyer may do this.
func (s *Service) BuyerConfirmReceipt(id int64, actor Actor) (Escrow, error) {
	return s.apply(id, actor, ActionBuyerConfirmReceipt)
}

// SellerRelease moves a confirmed escrow to completed. Only the recorded
// seller may do this.
func (s *Service) SellerRelease(id int64, actor Actor) (Escrow, error) {
	return s.apply(id, actor, ActionSellerRelease)
}

// Cancel removes a non-completed escrow. Either party may cancel.
func (s *Service) Cancel(id int64, actor Actor) (Escrow, error) {
	return s.apply(id, actor, ActionCancel)
}

func (s *Service) apply(id int64, actor Actor, action Action) (Escrow, error) {
	e, err := s.store.Get(id)
	if err != nil {
		return Escrow{}, err
	}
	decision, err := Decide(e, actor, action, s.resolver)
	if err != nil {
		return Escrow{}, err
	}
	if err := s.store.CommitTransition(id, decision.From, decision.To); err != nil {
		return Escrow{}, err
	}
	e.Status = decision.To
	return e, nil
}
