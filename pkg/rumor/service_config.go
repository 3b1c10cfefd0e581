package rumor

import (
	"time"
)

// ServiceConfig is the cluster-distributed configuration for a service
// group. There is at most one per group; the body is encrypted by the
// control plane before it ever reaches the store.
type ServiceConfig struct {
	ServiceGroup string
	Incarnation  uint64
	Encrypted    bool
	Config       []byte
	FromID       string
	Expiration   Expiration
}

func (sc *ServiceConfig) Kind() Kind  { return KindServiceConfig }
func (sc *ServiceConfig) ID() string  { return ServiceConfigID }
func (sc *ServiceConfig) Key() string { return sc.ServiceGroup }

func (sc *ServiceConfig) Merge(other *ServiceConfig) bool {
	if other.Incarnation <= sc.Incarnation {
		return false
	}
	*sc = *other.Clone()
	return true
}

func (sc *ServiceConfig) Expired(now time.Time) bool { return sc.Expiration.Expired(now) }
func (sc *ServiceConfig) Expire()                    { sc.Expiration.Expire() }

func (sc *ServiceConfig) Clone() *ServiceConfig {
	c := *sc
	c.Config = append([]byte(nil), sc.Config...)
	return &c
}
