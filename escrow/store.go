package escrow

import "sync"

// Store is the exclusive owner of the escrow collection. It is the only
// component that allocates ids or mutates a record, and every operation is
// serialized by a single lock so it is safe to call from any goroutine.
type Store struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*Escrow
	order   []int64
}

func NewStore() *Store {
	return &Store{
		records: make(map[int64]*Escrow),
	}
}

// Create allocates the next id, inserts a new pending record, and returns a
// copy of it. The counter is strictly monotonic and independent of the
// current collection size, so ids are never reused even after cancellations
// delete records.
func (s *Store) Create(buyer Identity, seller Identity, amount string, description string) Escrow {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec := &Escrow{
		ID:          s.nextID,
		Buyer:       buyer,
		Seller:      seller,
		Amount:      amount,
		Description: description,
		Status:      StatusPending,
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return *rec
}

// Get returns a copy of the record, or ErrNotFound.
func (s *Store) Get(id int64) (Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Escrow{}, ErrNotFound
	}
	return *rec, nil
}

// ListFor returns every record where identity matches the buyer (by id) or
// the seller (by handle), in insertion order. The result is a snapshot of
// the store at call time.
func (s *Store) ListFor(identity Identity) []Escrow {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Escrow
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if identity.Equal(rec.Buyer) || identity.Equal(rec.Seller) {
			out = append(out, *rec)
		}
	}
	return out
}

// CommitTransition atomically verifies the stored record is still in the
// expected status before applying the next one. If the status already moved,
// it returns ErrConflict and changes nothing, so two racing confirmations on
// the same escrow resolve to exactly one winner. A transition to cancelled
// removes the record entirely.
func (s *Store) CommitTransition(id int64, expectedFrom Status, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != expectedFrom {
		return ErrConflict
	}
	if to == StatusCancelled {
		delete(s.records, id)
		s.removeFromOrder(id)
		return nil
	}
	rec.Status = to
	return nil
}

func (s *Store) removeFromOrder(id int64) {
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
