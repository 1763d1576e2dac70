/*
Package memory provides in-memory store implementations (for testing/dev).

Each entity gets its own store with its own mutex, mirroring the rule that
accounts and rewards are independently contended resources. The CAS
contract is enforced with a plain version check under the store's lock, so
the concurrency behavior matches the SQLite backend: losing writers get
points.ErrConcurrentModification and retry from the read.
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/surveypoints/points-engine/award"
	"github.com/surveypoints/points-engine/catalog"
	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/points"
	"github.com/surveypoints/points-engine/redemption"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

type AccountStore struct {
	mu       sync.RWMutex
	accounts map[points.UserID]ledger.Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[points.UserID]ledger.Account)}
}

func (s *AccountStore) Get(_ context.Context, userID points.UserID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return acct, nil
}

func (s *AccountStore) Create(_ context.Context, acct ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.UserID]; ok {
		return ledger.ErrAccountExists
	}
	s.accounts[acct.UserID] = acct
	return nil
}

func (s *AccountStore) CompareAndSwap(_ context.Context, acct ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[acct.UserID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if current.Version != acct.Version-1 {
		return points.ErrConcurrentModification
	}
	s.accounts[acct.UserID] = acct
	return nil
}

// =============================================================================
// ENTRY STORE - append-only audit trail
// =============================================================================

type EntryStore struct {
	mu      sync.RWMutex
	entries map[points.UserID][]ledger.Entry
}

func NewEntryStore() *EntryStore {
	return &EntryStore{entries: make(map[points.UserID][]ledger.Entry)}
}

func (s *EntryStore) Append(_ context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.UserID] = append(s.entries[e.UserID], e)
	return nil
}

func (s *EntryStore) ListByUser(_ context.Context, userID points.UserID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Entry, len(s.entries[userID]))
	copy(result, s.entries[userID])
	return result, nil
}

// =============================================================================
// AWARD EVENT STORE - uniqueness on (user, type, ref)
// =============================================================================

type EventStore struct {
	mu     sync.RWMutex
	byID   map[string]award.Event
	byKey  map[eventKey]string
}

type eventKey struct {
	UserID points.UserID
	Type   award.EventType
	Ref    string
}

func NewEventStore() *EventStore {
	return &EventStore{
		byID:  make(map[string]award.Event),
		byKey: make(map[eventKey]string),
	}
}

func (s *EventStore) Insert(_ context.Context, e award.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := eventKey{UserID: e.UserID, Type: e.Type, Ref: e.Ref}
	if _, ok := s.byKey[k]; ok {
		return award.ErrDuplicateEvent
	}
	s.byKey[k] = e.ID
	s.byID[e.ID] = e
	return nil
}

func (s *EventStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	delete(s.byKey, eventKey{UserID: e.UserID, Type: e.Type, Ref: e.Ref})
	return nil
}

func (s *EventStore) ListByUser(_ context.Context, userID points.UserID) ([]award.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []award.Event
	for _, e := range s.byID {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// =============================================================================
// REWARD STORE
// =============================================================================

type RewardStore struct {
	mu      sync.RWMutex
	rewards map[points.RewardID]catalog.Reward
}

func NewRewardStore() *RewardStore {
	return &RewardStore{rewards: make(map[points.RewardID]catalog.Reward)}
}

func (s *RewardStore) Get(_ context.Context, id points.RewardID) (catalog.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rewards[id]
	if !ok {
		return catalog.Reward{}, catalog.ErrRewardNotFound
	}
	return cloneReward(r), nil
}

func (s *RewardStore) List(_ context.Context) ([]catalog.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]catalog.Reward, 0, len(s.rewards))
	for _, r := range s.rewards {
		result = append(result, cloneReward(r))
	}
	return result, nil
}

func (s *RewardStore) Create(_ context.Context, r catalog.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rewards[r.ID]; ok {
		return catalog.ErrRewardExists
	}
	s.rewards[r.ID] = cloneReward(r)
	return nil
}

func (s *RewardStore) CompareAndSwap(_ context.Context, r catalog.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rewards[r.ID]
	if !ok {
		return catalog.ErrRewardNotFound
	}
	if current.Version != r.Version-1 {
		return points.ErrConcurrentModification
	}
	s.rewards[r.ID] = cloneReward(r)
	return nil
}

// cloneReward copies the reward including the stock pointer, so callers
// can't mutate stored state through the shared *int64.
func cloneReward(r catalog.Reward) catalog.Reward {
	if r.Stock != nil {
		stock := *r.Stock
		r.Stock = &stock
	}
	return r
}

// =============================================================================
// REQUEST STORE
// =============================================================================

type RequestStore struct {
	mu       sync.RWMutex
	requests map[points.RequestID]redemption.Request
}

func NewRequestStore() *RequestStore {
	return &RequestStore{requests: make(map[points.RequestID]redemption.Request)}
}

func (s *RequestStore) Create(_ context.Context, r redemption.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[r.ID] = r
	return nil
}

func (s *RequestStore) Get(_ context.Context, id points.RequestID) (redemption.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return redemption.Request{}, redemption.ErrRequestNotFound
	}
	return r, nil
}

func (s *RequestStore) CompareAndSwap(_ context.Context, r redemption.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[r.ID]
	if !ok {
		return redemption.ErrRequestNotFound
	}
	if current.Version != r.Version-1 {
		return points.ErrConcurrentModification
	}
	s.requests[r.ID] = r
	return nil
}

func (s *RequestStore) ListByUser(_ context.Context, userID points.UserID) ([]redemption.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []redemption.Request
	for _, r := range s.requests {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RequestedAt.After(result[j].RequestedAt)
	})
	return result, nil
}

func (s *RequestStore) ListByStatus(_ context.Context, status redemption.Status) ([]redemption.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []redemption.Request
	for _, r := range s.requests {
		if status == "" || r.Status == status {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RequestedAt.Before(result[j].RequestedAt)
	})
	return result, nil
}
