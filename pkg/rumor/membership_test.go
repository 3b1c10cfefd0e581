package rumor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newMembership(id string, incarnation uint64, health Health) *Membership {
	return &Membership{
		Member: Member{
			ID:          id,
			Incarnation: incarnation,
			Address:     "10.0.0.1",
			SwimPort:    9631,
			GossipPort:  9638,
		},
		Health:     health,
		FromID:     id,
		Expiration: Forever(),
	}
}

func TestMembershipMergeHigherIncarnationWins(t *testing.T) {
	m := newMembership("m1", 1, Confirmed)
	other := newMembership("m1", 2, Alive)
	other.Member.Address = "10.0.0.2"
	if !m.Merge(other) {
		t.Fatal("higher incarnation should merge")
	}
	if diff := cmp.Diff(other, m); diff != "" {
		t.Errorf("membership after merge differs: (-want +got)\n%s", diff)
	}
}

func TestMembershipMergeLowerIncarnationIgnored(t *testing.T) {
	m := newMembership("m1", 5, Alive)
	if m.Merge(newMembership("m1", 4, Confirmed)) {
		t.Fatal("lower incarnation should not merge")
	}
	if m.Health != Alive {
		t.Fatalf("health should be unchanged: %s", m.Health)
	}
}

func TestMembershipMergeEqualIncarnationHealthPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		current Health
		in      Health
		changed bool
	}{
		{"alive to suspect", Alive, Suspect, true},
		{"suspect to confirmed", Suspect, Confirmed, true},
		{"confirmed to departed", Confirmed, Departed, true},
		{"alive to departed", Alive, Departed, true},
		{"suspect to alive", Suspect, Alive, false},
		{"departed to confirmed", Departed, Confirmed, false},
		{"alive to alive", Alive, Alive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMembership("m1", 3, tt.current)
			if got := m.Merge(newMembership("m1", 3, tt.in)); got != tt.changed {
				t.Fatalf("merge changed = %v, want %v", got, tt.changed)
			}
			want := tt.current
			if tt.changed {
				want = tt.in
			}
			if m.Health != want {
				t.Fatalf("health = %s, want %s", m.Health, want)
			}
		})
	}
}

func TestMembershipIncarnationNeverDecreases(t *testing.T) {
	m := newMembership("m1", 3, Alive)
	for _, inc := range []uint64{1, 2, 3, 4, 2} {
		before := m.Member.Incarnation
		m.Merge(newMembership("m1", inc, Alive))
		if m.Member.Incarnation < before {
			t.Fatalf("incarnation decreased: %d -> %d", before, m.Member.Incarnation)
		}
	}
	if m.Member.Incarnation != 4 {
		t.Fatalf("unexpected final incarnation: %d", m.Member.Incarnation)
	}
}
