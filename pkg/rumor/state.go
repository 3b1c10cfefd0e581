package rumor

import (
	"time"

	"github.com/pkg/errors"
)

// State aggregates the per-variant stores a node keeps. Cross-variant
// rules (departure dominance) live here, since a single store only ever
// sees its own kind.
type State struct {
	Memberships     *Store[*Membership]
	Departures      *Store[*Departure]
	Services        *Store[*Service]
	ServiceConfigs  *Store[*ServiceConfig]
	ServiceFiles    *Store[*ServiceFile]
	Elections       *Store[*Election]
	ElectionUpdates *Store[*ElectionUpdate]
}

func NewState(observer Observer) *State {
	return &State{
		Memberships:     NewStore[*Membership](observer),
		Departures:      NewStore[*Departure](observer),
		Services:        NewStore[*Service](observer),
		ServiceConfigs:  NewStore[*ServiceConfig](observer),
		ServiceFiles:    NewStore[*ServiceFile](observer),
		Elections:       NewStore[*Election](observer),
		ElectionUpdates: NewStore[*ElectionUpdate](observer),
	}
}

// InsertMembership inserts a membership rumor, forcing its health to
// departed when a departure is already on record for the member.
func (s *State) InsertMembership(m *Membership) bool {
	if s.Departures.ContainsRumor(DepartureKey, m.Member.ID) && m.Health != Departed {
		m = m.Clone()
		m.Health = Departed
	}
	return s.Memberships.Insert(m)
}

// InsertDeparture inserts a departure and pins any existing membership
// for the member to departed.
func (s *State) InsertDeparture(d *Departure) bool {
	changed := s.Departures.Insert(d)
	var forced *Membership
	s.Memberships.WithRumor("", d.MemberID, func(m *Membership) {
		if m.Health != Departed {
			forced = m.Clone()
			forced.Health = Departed
		}
	})
	if forced != nil {
		s.Memberships.Insert(forced)
	}
	return changed
}

// Apply routes a decoded envelope to the right store. Returns whether the
// rumor changed any state.
func (s *State) Apply(env *Envelope) (bool, error) {
	switch env.Type {
	case KindMember:
		return s.InsertMembership(env.Membership), nil
	case KindDeparture:
		return s.InsertDeparture(env.Departure), nil
	case KindService:
		return s.Services.Insert(env.Service), nil
	case KindServiceConfig:
		return s.ServiceConfigs.Insert(env.ServiceConfig), nil
	case KindServiceFile:
		return s.ServiceFiles.Insert(env.ServiceFile), nil
	case KindElection:
		return s.Elections.Insert(env.Election), nil
	case KindElectionUpdate:
		return s.ElectionUpdates.Insert(env.ElectionUpdate), nil
	}
	return false, errors.WithStack(&ProtocolMismatchError{Field: "type"})
}

// RumorKeys enumerates every live rumor across all stores, for gossip
// candidate selection.
func (s *State) RumorKeys() []RumorKey {
	var keys []RumorKey
	keys = append(keys, s.Memberships.RumorKeys()...)
	keys = append(keys, s.Departures.RumorKeys()...)
	keys = append(keys, s.Services.RumorKeys()...)
	keys = append(keys, s.ServiceConfigs.RumorKeys()...)
	keys = append(keys, s.ServiceFiles.RumorKeys()...)
	keys = append(keys, s.Elections.RumorKeys()...)
	keys = append(keys, s.ElectionUpdates.RumorKeys()...)
	return keys
}

// Encode wire-encodes a single rumor by its descriptor.
func (s *State) Encode(k RumorKey) ([]byte, error) {
	switch k.Kind {
	case KindMember:
		return s.Memberships.Encode(k.Key, k.ID)
	case KindDeparture:
		return s.Departures.Encode(k.Key, k.ID)
	case KindService:
		return s.Services.Encode(k.Key, k.ID)
	case KindServiceConfig:
		return s.ServiceConfigs.Encode(k.Key, k.ID)
	case KindServiceFile:
		return s.ServiceFiles.Encode(k.Key, k.ID)
	case KindElection:
		return s.Elections.Encode(k.Key, k.ID)
	case KindElectionUpdate:
		return s.ElectionUpdates.Encode(k.Key, k.ID)
	}
	return nil, errors.WithStack(&NonExistentRumorError{ID: k.ID, Key: k.Key})
}

// PurgeExpired drops expired rumors from every store.
func (s *State) PurgeExpired(now time.Time) {
	s.Memberships.PurgeExpired(now)
	s.Services.PurgeExpired(now)
	s.ServiceConfigs.PurgeExpired(now)
	s.ServiceFiles.PurgeExpired(now)
	s.Elections.PurgeExpired(now)
	s.ElectionUpdates.PurgeExpired(now)
}
