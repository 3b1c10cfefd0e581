package rumor

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/butterfly/pkg/log"
)

// ElectionPhase is the state of a leader election for a service group.
type ElectionPhase int32

const (
	PhaseRunning ElectionPhase = iota + 1
	PhaseNoQuorum
	PhaseFinished
)

func (p ElectionPhase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseNoQuorum:
		return "no-quorum"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// Election is the leader-election rumor for a service group. The term
// totally orders elections: a higher term always replaces a lower one.
// Within a term, votes accumulate until the election layer observes a
// quorum and reissues the rumor as finished; the merge itself never
// promotes.
type Election struct {
	MemberID     string
	ServiceGroup string
	Term         uint64
	Suitability  uint64
	Phase        ElectionPhase
	Votes        []string
	Incarnation  uint64
	FromID       string
	Expiration   Expiration
}

func NewElection(memberID, serviceGroup string, term, suitability uint64) *Election {
	return &Election{
		MemberID:     memberID,
		ServiceGroup: serviceGroup,
		Term:         term,
		Suitability:  suitability,
		Phase:        PhaseRunning,
		Votes:        []string{memberID},
		FromID:       memberID,
		Expiration:   Forever(),
	}
}

func (e *Election) Kind() Kind  { return KindElection }
func (e *Election) ID() string  { return ElectionID }
func (e *Election) Key() string { return e.ServiceGroup }

func (e *Election) Merge(other *Election) bool {
	return e.merge(other)
}

func (e *Election) merge(other *Election) bool {
	switch {
	case other.Term > e.Term:
		*e = *other.Clone()
		return true
	case other.Term < e.Term:
		return false
	}
	if other.Phase == PhaseFinished {
		if e.Phase != PhaseFinished {
			*e = *other.Clone()
			return true
		}
		if other.MemberID != e.MemberID {
			// Two finished elections for the same term must agree on the
			// winner. Keep what we have and flag the conflict.
			log.Warn("conflicting finished elections for same term",
				zap.String("service-group", e.ServiceGroup),
				zap.Uint64("term", e.Term),
				zap.String("candidate", e.MemberID),
				zap.String("incoming-candidate", other.MemberID),
			)
		}
		return false
	}
	if e.Phase == PhaseFinished {
		return false
	}
	changed := false
	for _, v := range other.Votes {
		if e.Vote(v) {
			changed = true
		}
	}
	return changed
}

// Vote records a vote for this election's candidate, keeping the vote set
// sorted. Returns false if the member already voted.
func (e *Election) Vote(memberID string) bool {
	i := sort.SearchStrings(e.Votes, memberID)
	if i < len(e.Votes) && e.Votes[i] == memberID {
		return false
	}
	e.Votes = append(e.Votes, "")
	copy(e.Votes[i+1:], e.Votes[i:])
	e.Votes[i] = memberID
	return true
}

func (e *Election) HasVote(memberID string) bool {
	i := sort.SearchStrings(e.Votes, memberID)
	return i < len(e.Votes) && e.Votes[i] == memberID
}

func (e *Election) Expired(now time.Time) bool { return e.Expiration.Expired(now) }
func (e *Election) Expire()                    { e.Expiration.Expire() }

func (e *Election) Clone() *Election {
	c := *e
	c.Votes = append([]string(nil), e.Votes...)
	return &c
}

// ElectionUpdate drives a re-election after a topology change. It follows
// the same transitions as Election but lives under its own inner key so
// both can coexist for a group during the change.
type ElectionUpdate struct {
	Election
}

func NewElectionUpdate(memberID, serviceGroup string, term, suitability uint64) *ElectionUpdate {
	return &ElectionUpdate{Election: *NewElection(memberID, serviceGroup, term, suitability)}
}

func (e *ElectionUpdate) Kind() Kind { return KindElectionUpdate }
func (e *ElectionUpdate) ID() string { return ElectionUpdateID }

func (e *ElectionUpdate) Merge(other *ElectionUpdate) bool {
	return e.Election.merge(&other.Election)
}

func (e *ElectionUpdate) Clone() *ElectionUpdate {
	return &ElectionUpdate{Election: *e.Election.Clone()}
}
