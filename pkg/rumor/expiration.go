package rumor

import (
	"time"

	"github.com/pkg/errors"

	"github.com/fleetops/butterfly/pkg/util/env"
)

// Rumors that should never age out on their own carry an expiration far
// enough in the future to be effectively forever. They are moved up to
// the configurable soon window only by an explicit trigger, e.g. an
// election losing quorum.
const foreverWindow = 100 * 365 * 24 * time.Hour

const defaultExpirationSecs = 3600

// Expiration is the instant after which a rumor is eligible for purge.
type Expiration struct {
	at time.Time
}

func Forever() Expiration {
	return Expiration{at: time.Now().UTC().Add(foreverWindow)}
}

func Soon() Expiration {
	return Expiration{at: soonDate()}
}

func NewExpiration(t time.Time) Expiration {
	return Expiration{at: t.UTC()}
}

func (e Expiration) Expired(now time.Time) bool {
	return now.After(e.at)
}

func (e *Expiration) Expire() {
	e.at = soonDate()
}

func (e Expiration) Time() time.Time { return e.at }

func (e Expiration) String() string {
	return e.at.Format(time.RFC3339Nano)
}

// Equal makes Expiration comparable by cmp and friends despite the
// unexported field.
func (e Expiration) Equal(o Expiration) bool {
	return e.at.Equal(o.at)
}

func soonDate() time.Time {
	cfg := struct {
		ExpirationSecs uint64 `env:"HAB_RUMOR_EXPIRATION_SECS"`
	}{ExpirationSecs: defaultExpirationSecs}
	if err := env.SetEnvs(&cfg); err != nil || cfg.ExpirationSecs == 0 {
		cfg.ExpirationSecs = defaultExpirationSecs
	}
	return time.Now().UTC().Add(time.Duration(cfg.ExpirationSecs) * time.Second)
}

func expirationToWire(e Expiration) string {
	return e.at.Format(time.RFC3339Nano)
}

// expirationFromWire parses an expiration received on the wire. An absent
// value means the rumor never expires.
func expirationFromWire(s string) (Expiration, error) {
	if s == "" {
		return Forever(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Expiration{}, errors.WithStack(&ProtocolMismatchError{Field: "expiration"})
	}
	return Expiration{at: t.UTC()}, nil
}
