package rumor

import (
	"time"
)

// Departure records an operator-driven, permanent expulsion of a member.
// It never expires; once present it pins the member's health to departed
// no matter what incarnation later membership rumors carry.
type Departure struct {
	MemberID   string
	FromID     string
	Expiration Expiration
}

func NewDeparture(memberID string) *Departure {
	return &Departure{
		MemberID:   memberID,
		FromID:     memberID,
		Expiration: Forever(),
	}
}

func (d *Departure) Kind() Kind  { return KindDeparture }
func (d *Departure) ID() string  { return d.MemberID }
func (d *Departure) Key() string { return DepartureKey }

// Merge is idempotent: the receiver already records the departure, so an
// incoming duplicate changes nothing.
func (d *Departure) Merge(other *Departure) bool { return false }

func (d *Departure) Expired(now time.Time) bool { return false }
func (d *Departure) Expire()                    {}

func (d *Departure) Clone() *Departure {
	c := *d
	return &c
}
