package rumor

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Projections are the stable JSON views served by status endpoints. Each
// variant defines its own so that internal key schemes never leak; the
// rumors' 64-bit incarnations, terms and suitability render as decimal
// strings to survive double-precision JSON consumers. A store's
// update_counter is rendered as a JSON number.

func u64str(v uint64) string { return strconv.FormatUint(v, 10) }

func (m *Membership) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MemberID    string `json:"member_id"`
		Incarnation string `json:"incarnation"`
		Address     string `json:"address"`
		SwimPort    int32  `json:"swim_port"`
		GossipPort  int32  `json:"gossip_port"`
		Health      string `json:"health"`
		Expiration  string `json:"expiration"`
	}{
		MemberID:    m.Member.ID,
		Incarnation: u64str(m.Member.Incarnation),
		Address:     m.Member.Address,
		SwimPort:    m.Member.SwimPort,
		GossipPort:  m.Member.GossipPort,
		Health:      m.Health.String(),
		Expiration:  m.Expiration.String(),
	})
}

func (s *Service) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MemberID     string `json:"member_id"`
		ServiceGroup string `json:"service_group"`
		Incarnation  string `json:"incarnation"`
		Pkg          string `json:"pkg"`
		Initialized  bool   `json:"initialized"`
		Sys          []byte `json:"sys,omitempty"`
		Cfg          []byte `json:"cfg,omitempty"`
		Exported     []byte `json:"exported,omitempty"`
		Expiration   string `json:"expiration"`
	}{
		MemberID:     s.MemberID,
		ServiceGroup: s.ServiceGroup,
		Incarnation:  u64str(s.Incarnation),
		Pkg:          s.Pkg,
		Initialized:  s.Initialized,
		Sys:          s.Sys,
		Cfg:          s.Cfg,
		Exported:     s.Exported,
		Expiration:   s.Expiration.String(),
	})
}

func (sc *ServiceConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ServiceGroup string `json:"service_group"`
		Incarnation  string `json:"incarnation"`
		Encrypted    bool   `json:"encrypted"`
		Config       []byte `json:"config,omitempty"`
		Expiration   string `json:"expiration"`
	}{
		ServiceGroup: sc.ServiceGroup,
		Incarnation:  u64str(sc.Incarnation),
		Encrypted:    sc.Encrypted,
		Config:       sc.Config,
		Expiration:   sc.Expiration.String(),
	})
}

func (sf *ServiceFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ServiceGroup string `json:"service_group"`
		Incarnation  string `json:"incarnation"`
		Filename     string `json:"filename"`
		Body         []byte `json:"body,omitempty"`
		Expiration   string `json:"expiration"`
	}{
		ServiceGroup: sf.ServiceGroup,
		Incarnation:  u64str(sf.Incarnation),
		Filename:     sf.Filename,
		Body:         sf.Body,
		Expiration:   sf.Expiration.String(),
	})
}

func (e *Election) MarshalJSON() ([]byte, error) {
	return json.Marshal(electionView(e))
}

func (e *ElectionUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(electionView(&e.Election))
}

func electionView(e *Election) interface{} {
	return struct {
		MemberID     string   `json:"member_id"`
		ServiceGroup string   `json:"service_group"`
		Term         string   `json:"term"`
		Suitability  string   `json:"suitability"`
		Phase        string   `json:"status"`
		Votes        []string `json:"votes"`
		Expiration   string   `json:"expiration"`
	}{
		MemberID:     e.MemberID,
		ServiceGroup: e.ServiceGroup,
		Term:         u64str(e.Term),
		Suitability:  u64str(e.Suitability),
		Phase:        e.Phase.String(),
		Votes:        e.Votes,
		Expiration:   e.Expiration.String(),
	}
}

func (d *Departure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MemberID   string `json:"member_id"`
		Expiration string `json:"expiration"`
	}{
		MemberID:   d.MemberID,
		Expiration: d.Expiration.String(),
	})
}

// MarshalJSON renders the whole store as {"list": ..., "update_counter": N}.
func (s *Store[T]) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(struct {
		List          map[string]map[string]T `json:"list"`
		UpdateCounter uint64                  `json:"update_counter"`
	}{
		List:          s.list,
		UpdateCounter: s.updates.Load(),
	})
}

// MembershipsProxy projects a membership store as
// {service_group: {member_id: rumor}}.
type MembershipsProxy struct{ Store *Store[*Membership] }

func (p MembershipsProxy) MarshalJSON() ([]byte, error) {
	return marshalGrouped(p.Store)
}

// ServicesProxy projects a service store as
// {service_group: {member_id: rumor}}.
type ServicesProxy struct{ Store *Store[*Service] }

func (p ServicesProxy) MarshalJSON() ([]byte, error) {
	return marshalGrouped(p.Store)
}

// ServiceFilesProxy projects a service-file store as
// {service_group: {filename: rumor}}.
type ServiceFilesProxy struct{ Store *Store[*ServiceFile] }

func (p ServiceFilesProxy) MarshalJSON() ([]byte, error) {
	return marshalGrouped(p.Store)
}

func marshalGrouped[T Rumor[T]](s *Store[T]) ([]byte, error) {
	out := make(map[string]map[string]T)
	s.WithKeys(func(key string, rumors map[string]T) {
		inner := make(map[string]T, len(rumors))
		for id, r := range rumors {
			inner[id] = r
		}
		out[key] = inner
	})
	return json.Marshal(out)
}

// DeparturesProxy projects the departure store as a sorted flat list of
// member ids.
type DeparturesProxy struct{ Store *Store[*Departure] }

func (p DeparturesProxy) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0)
	p.Store.WithRumors(DepartureKey, func(d *Departure) {
		ids = append(ids, d.MemberID)
	})
	sort.Strings(ids)
	return json.Marshal(ids)
}

// ElectionsProxy collapses the fixed inner key so the projection is
// {service_group: rumor}.
type ElectionsProxy struct{ Store *Store[*Election] }

func (p ElectionsProxy) MarshalJSON() ([]byte, error) {
	out := make(map[string]*Election)
	p.Store.WithKeys(func(key string, rumors map[string]*Election) {
		out[key] = rumors[ElectionID]
	})
	return json.Marshal(out)
}

// ElectionUpdatesProxy collapses the fixed inner key so the projection is
// {service_group: rumor}.
type ElectionUpdatesProxy struct{ Store *Store[*ElectionUpdate] }

func (p ElectionUpdatesProxy) MarshalJSON() ([]byte, error) {
	out := make(map[string]*ElectionUpdate)
	p.Store.WithKeys(func(key string, rumors map[string]*ElectionUpdate) {
		out[key] = rumors[ElectionUpdateID]
	})
	return json.Marshal(out)
}

// ServiceConfigsProxy collapses the fixed inner key so the projection is
// {service_group: rumor}.
type ServiceConfigsProxy struct{ Store *Store[*ServiceConfig] }

func (p ServiceConfigsProxy) MarshalJSON() ([]byte, error) {
	out := make(map[string]*ServiceConfig)
	p.Store.WithKeys(func(key string, rumors map[string]*ServiceConfig) {
		out[key] = rumors[ServiceConfigID]
	})
	return json.Marshal(out)
}

// MarshalJSON renders every store's projection keyed by kind.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Memberships     MembershipsProxy     `json:"membership"`
		Services        ServicesProxy        `json:"services"`
		ServiceConfigs  ServiceConfigsProxy  `json:"service_configs"`
		ServiceFiles    ServiceFilesProxy    `json:"service_files"`
		Elections       ElectionsProxy       `json:"elections"`
		ElectionUpdates ElectionUpdatesProxy `json:"election_updates"`
		Departures      DeparturesProxy      `json:"departures"`
	}{
		Memberships:     MembershipsProxy{Store: s.Memberships},
		Services:        ServicesProxy{Store: s.Services},
		ServiceConfigs:  ServiceConfigsProxy{Store: s.ServiceConfigs},
		ServiceFiles:    ServiceFilesProxy{Store: s.ServiceFiles},
		Elections:       ElectionsProxy{Store: s.Elections},
		ElectionUpdates: ElectionUpdatesProxy{Store: s.ElectionUpdates},
		Departures:      DeparturesProxy{Store: s.Departures},
	})
}
