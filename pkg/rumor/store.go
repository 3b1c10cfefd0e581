package rumor

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Observer receives store events. Implementations must be safe for
// concurrent use; the store calls them while holding its lock.
type Observer interface {
	// RumorIgnored is called when an insert changed nothing, meaning the
	// incoming rumor was effectively ignored.
	RumorIgnored(kind Kind)
}

type nopObserver struct{}

func (nopObserver) RumorIgnored(Kind) {}

// NopObserver returns an Observer that discards every event.
func NopObserver() Observer { return nopObserver{} }

// Store holds rumors of a single variant, keyed first by the rumor's key
// (the service group, or a fixed tag) and then by its id (usually a
// member id). All methods are safe for concurrent use. Closures passed to
// the With* methods run under the store's lock and must not call back
// into the store.
type Store[T Rumor[T]] struct {
	mu       sync.RWMutex
	list     map[string]map[string]T
	updates  *atomic.Uint64
	observer Observer
}

// NewStore returns an empty store reporting to the given observer. A nil
// observer discards events.
func NewStore[T Rumor[T]](observer Observer) *Store[T] {
	return NewStoreWithCounter[T](observer, 0)
}

// NewStoreWithCounter pre-sets the update counter, which is mainly useful
// in tests pinning wraparound behavior.
func NewStoreWithCounter[T Rumor[T]](observer Observer, counter uint64) *Store[T] {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Store[T]{
		list:     make(map[string]map[string]T),
		updates:  atomic.NewUint64(counter),
		observer: observer,
	}
}

// Insert offers a rumor to the store. If a rumor already exists under the
// same (key, id) it is merged according to the variant's rules; otherwise
// the rumor is installed. Returns true if anything changed, in which case
// the update counter was incremented.
func (s *Store[T]) Insert(r T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rumors, ok := s.list[r.Key()]
	if !ok {
		rumors = make(map[string]T)
		s.list[r.Key()] = rumors
	}
	changed := true
	if existing, ok := rumors[r.ID()]; ok {
		changed = existing.Merge(r)
	} else {
		rumors[r.ID()] = r
	}
	if changed {
		s.incrementUpdateCounter()
	} else {
		s.observer.RumorIgnored(r.Kind())
	}
	return changed
}

// Remove deletes the rumor stored under (key, id), if any.
func (s *Store[T]) Remove(key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rumors, ok := s.list[key]; ok {
		delete(rumors, id)
	}
}

// Clear drops all rumors and resets the update counter, returning the
// counter value from before the reset.
func (s *Store[T]) Clear() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = make(map[string]map[string]T)
	return s.updates.Swap(0)
}

// Encode wire-encodes the rumor stored under (key, id).
func (s *Store[T]) Encode(key, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rumors, ok := s.list[key]; ok {
		if r, ok := rumors[id]; ok {
			return r.Encode()
		}
	}
	return nil, errors.WithStack(&NonExistentRumorError{ID: id, Key: key})
}

// GetUpdateCounter loads the update counter. The counter wraps on
// overflow; it only needs to differ between any two distinct states.
func (s *Store[T]) GetUpdateCounter() uint64 {
	return s.updates.Load()
}

func (s *Store[T]) incrementUpdateCounter() {
	s.updates.Add(1)
}

// LenForKey returns the number of rumors stored under key.
func (s *Store[T]) LenForKey(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list[key])
}

// ContainsRumor reports whether a rumor is stored under (key, id).
func (s *Store[T]) ContainsRumor(key, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rumors, ok := s.list[key]
	if !ok {
		return false
	}
	_, ok = rumors[id]
	return ok
}

// WithKeys calls fn once per outer key with the inner map. The map must
// not be retained or mutated.
func (s *Store[T]) WithKeys(fn func(key string, rumors map[string]T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, rumors := range s.list {
		fn(key, rumors)
	}
}

// WithRumors calls fn for every rumor stored under key.
func (s *Store[T]) WithRumors(key string, fn func(r T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.list[key] {
		fn(r)
	}
}

// WithRumor calls fn with the rumor stored under (key, id) if present.
func (s *Store[T]) WithRumor(key, id string, fn func(r T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rumors, ok := s.list[key]; ok {
		if r, ok := rumors[id]; ok {
			fn(r)
		}
	}
}

// AssertRumor panics unless the rumor under (key, id) exists and
// satisfies the predicate. Test helper.
func (s *Store[T]) AssertRumor(key, id string, predicate func(r T) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rumors, ok := s.list[key]
	if !ok {
		panic("no rumors for " + key + " present")
	}
	r, ok := rumors[id]
	if !ok {
		panic("rumor " + id + " not present")
	}
	if !predicate(r) {
		panic(id + " failed predicate")
	}
}

// partitionedRumors clones every rumor, split into (expired, live)
// relative to now.
func (s *Store[T]) partitionedRumors(now time.Time) (expired, live []T) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rumors := range s.list {
		for _, r := range rumors {
			if r.Expired(now) {
				expired = append(expired, r.Clone())
			} else {
				live = append(live, r.Clone())
			}
		}
	}
	return expired, live
}

// ExpiredRumors returns clones of every rumor whose expiration has passed
// at now.
func (s *Store[T]) ExpiredRumors(now time.Time) []T {
	expired, _ := s.partitionedRumors(now)
	return expired
}

// LiveRumors returns clones of every rumor still live at now.
func (s *Store[T]) LiveRumors(now time.Time) []T {
	_, live := s.partitionedRumors(now)
	return live
}

// PurgeExpired removes every rumor whose expiration has passed at now.
func (s *Store[T]) PurgeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rumors := range s.list {
		for id, r := range rumors {
			if r.Expired(now) {
				delete(rumors, id)
			}
		}
	}
}

// RumorKeys describes every rumor that is live right now, for selecting
// gossip candidates.
func (s *Store[T]) RumorKeys() []RumorKey {
	live := s.LiveRumors(time.Now())
	keys := make([]RumorKey, 0, len(live))
	for _, r := range live {
		keys = append(keys, NewRumorKey(r.Kind(), r.ID(), r.Key()))
	}
	return keys
}

// ExpireAllForKey moves every rumor under key up to the soon window,
// making the next purge drop them. Used to force an election re-run.
func (s *Store[T]) ExpireAllForKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.list[key] {
		r.Expire()
	}
}

// ContainsGroupWithoutMember reports whether the group has been seen and
// holds no rumor for the given member. A group whose rumors were all
// removed or purged still counts as seen.
func (s *Store[T]) ContainsGroupWithoutMember(group, memberID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rumors, ok := s.list[group]
	if !ok {
		return false
	}
	_, ok = rumors[memberID]
	return !ok
}

// MinMemberIDWith returns the lexicographically smallest inner key under
// group satisfying the predicate. Used as the election tiebreak.
func (s *Store[T]) MinMemberIDWith(group string, predicate func(memberID string) bool) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	min, found := "", false
	for id := range s.list[group] {
		if !predicate(id) {
			continue
		}
		if !found || id < min {
			min, found = id, true
		}
	}
	return min, found
}

// EncodeAll wire-encodes every rumor, ordered by outer then inner key so
// that equal states produce equal output.
func (s *Store[T]) EncodeAll() ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.list))
	for key := range s.list {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var out [][]byte
	for _, key := range keys {
		rumors := s.list[key]
		ids := make([]string, 0, len(rumors))
		for id := range rumors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			data, err := rumors[id].Encode()
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
	}
	return out, nil
}

// Restore atomically replaces the store contents with the given rumors
// and increments the update counter once.
func (s *Store[T]) Restore(rumors []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = make(map[string]map[string]T)
	for _, r := range rumors {
		inner, ok := s.list[r.Key()]
		if !ok {
			inner = make(map[string]T)
			s.list[r.Key()] = inner
		}
		inner[r.ID()] = r
	}
	s.incrementUpdateCounter()
}
