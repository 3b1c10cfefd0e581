// Package gossip bridges the rumor state to the wire. It wraps
// memberlist for transport and failure detection; all cluster semantics
// stay in the rumor packages. Inbound envelopes are decoded and offered
// to the state through its normal merge path, and locally-authored
// rumors are queued for broadcast.
package gossip

import (
	"context"
	"fmt"
	stdlog "log"
	"strings"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetops/butterfly/pkg/dat"
	"github.com/fleetops/butterfly/pkg/log"
	"github.com/fleetops/butterfly/pkg/rumor"
	netutil "github.com/fleetops/butterfly/pkg/util/net"
)

const DefaultGossipPort = 9638

type Config struct {
	Name       string
	GossipHost string
	GossipPort int
	SecretKey  []byte
	LogLevel   zapcore.Level
}

type Gossip struct {
	m memberlister

	config *memberlist.Config
	events chan memberlist.NodeEvent

	broadcasts *memberlist.TransmitLimitedQueue
	state      *rumor.State
}

func New(cfg *Config, state *rumor.State) *Gossip {
	c := memberlist.DefaultLANConfig()
	c.Name = cfg.Name
	c.BindAddr = cfg.GossipHost
	c.BindPort = cfg.GossipPort
	c.Logger = stdlog.New(&logger{log.NewLoggerWithLevel("memberlist", cfg.LogLevel, zap.AddCallerSkip(2))}, "", 0)
	c.SecretKey = cfg.SecretKey

	g := &Gossip{
		m:      &noopMemberlist{},
		config: c,
		events: make(chan memberlist.NodeEvent, 100),
		state:  state,
	}
	g.broadcasts = &memberlist.TransmitLimitedQueue{
		NumNodes: func() int {
			return g.m.NumMembers()
		},
		RetransmitMult: 4,
	}
	c.Delegate = g
	c.Events = &memberlist.ChannelEventDelegate{Ch: g.events}
	return g
}

func (g *Gossip) Shutdown() error {
	if err := g.m.Shutdown(); err != nil {
		return err
	}
	if g.config.Events != nil {
		g.config.Events = nil
	}
	if g.events != nil {
		close(g.events)
		g.events = nil
	}
	return nil
}

// Start attempts to join a gossip network using the given bootstrap addresses.
func (g *Gossip) Start(ctx context.Context, baddrs []string) error {
	m, err := memberlist.Create(g.config)
	if err != nil {
		return err
	}
	g.m = m

	peers := make([]string, 0)
	for _, addr := range baddrs {
		host, port, err := netutil.SplitHostPort(addr)
		if err != nil {
			return errors.Wrapf(err, "cannot split bootstrap address: %#v", addr)
		}
		if host == "" {
			host = "127.0.0.1"
		}
		if port == 0 {
			port = DefaultGossipPort
		}
		peers = append(peers, fmt.Sprintf("%s:%d", host, port))
	}

	log.Debug("attempting to join gossip network ...",
		zap.String("bootstrap-addrs", strings.Join(peers, ",")),
	)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, err := g.m.Join(peers)
			if err != nil {
				log.Errorf("cannot join gossip network: %v", err)
				continue
			}
			log.Debug("joined gossip network successfully")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Events returns a read-only channel of memberlist events. The agent
// loop turns these into Membership rumor inserts.
func (g *Gossip) Events() <-chan memberlist.NodeEvent { return g.events }

// Broadcast queues a rumor for dissemination to the gossip network.
func (g *Gossip) Broadcast(k rumor.RumorKey) error {
	data, err := g.state.Encode(k)
	if err != nil {
		return err
	}
	g.broadcasts.QueueBroadcast(&msg{data})
	return nil
}

// BroadcastAll queues every live rumor for dissemination.
func (g *Gossip) BroadcastAll() {
	for _, k := range g.state.RumorKeys() {
		if err := g.Broadcast(k); err != nil {
			log.Debugf("cannot broadcast rumor %s: %v", k, err)
		}
	}
}

type memberlister interface {
	Join([]string) (int, error)
	LocalNode() *memberlist.Node
	Members() []*memberlist.Node
	NumMembers() int
	Shutdown() error
}

type noopMemberlist struct{}

func (noopMemberlist) Join([]string) (int, error) {
	return 0, nil
}

func (noopMemberlist) LocalNode() *memberlist.Node {
	return &memberlist.Node{}
}

func (noopMemberlist) Members() []*memberlist.Node {
	return nil
}

func (noopMemberlist) NumMembers() int {
	return 0
}

func (noopMemberlist) Shutdown() error {
	return nil
}

// msg implements the memberlist.Broadcast interface and is required to
// send messages over the gossip network
type msg struct {
	data []byte
}

func (m *msg) Invalidates(other memberlist.Broadcast) bool { return false }
func (m *msg) Message() []byte                             { return m.data }
func (m *msg) Finished()                                   {}

func (g *Gossip) NodeMeta(limit int) []byte { return nil }

// NotifyMsg applies an inbound rumor envelope. Malformed envelopes are
// dropped with a warning; the store's merge decides everything else.
func (g *Gossip) NotifyMsg(data []byte) {
	if len(data) == 0 {
		return
	}
	env, err := rumor.DecodeEnvelope(data)
	if err != nil {
		log.Warn("dropping malformed rumor", zap.Error(err))
		return
	}
	changed, err := g.state.Apply(env)
	if err != nil {
		log.Warn("cannot apply rumor", zap.Error(err))
		return
	}
	if changed {
		// Accepted rumors keep spreading.
		g.broadcasts.QueueBroadcast(&msg{data})
	}
}

func (g *Gossip) GetBroadcasts(overhead, limit int) [][]byte {
	return g.broadcasts.GetBroadcasts(overhead, limit)
}

// LocalState ships the full rumor state for push/pull anti-entropy.
func (g *Gossip) LocalState(join bool) []byte {
	data, err := dat.Marshal(g.state)
	if err != nil {
		log.Error("cannot send gossip local state", zap.Error(err))
		return nil
	}
	return data
}

// MergeRemoteState merges a peer's full state through the normal
// per-rumor merge path.
func (g *Gossip) MergeRemoteState(buf []byte, join bool) {
	if len(buf) == 0 {
		return
	}
	contents, err := dat.Unmarshal(buf)
	if err != nil {
		log.Error("cannot merge gossip remote state", zap.Error(err))
		return
	}
	contents.MergeInto(g.state)
}
