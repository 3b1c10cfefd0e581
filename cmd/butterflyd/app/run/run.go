package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetops/butterfly/pkg/dat"
	"github.com/fleetops/butterfly/pkg/gossip"
	"github.com/fleetops/butterfly/pkg/log"
	"github.com/fleetops/butterfly/pkg/rumor"
	"github.com/fleetops/butterfly/pkg/snapshot"
	netutil "github.com/fleetops/butterfly/pkg/util/net"
)

var opts struct {
	Name             string
	GossipHost       string
	GossipPort       int
	BootstrapAddrs   []string
	DatFile          string
	SnapshotBackup   string
	SnapshotInterval time.Duration
	PurgeInterval    time.Duration
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "run",
		Short:         "run the cluster state agent",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent()
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "member name (default: generated)")
	cmd.Flags().StringVar(&opts.GossipHost, "gossip-host", "", "gossip bind host (default: first routable IPv4 address)")
	cmd.Flags().IntVar(&opts.GossipPort, "gossip-port", gossip.DefaultGossipPort, "gossip bind port")
	cmd.Flags().StringSliceVar(&opts.BootstrapAddrs, "bootstrap-addrs", nil, "addresses of existing members")
	cmd.Flags().StringVar(&opts.DatFile, "dat-file", "butterfly.dat", "path of the rumor snapshot file")
	cmd.Flags().StringVar(&opts.SnapshotBackup, "snapshot-backup", "", "optional backup url (file:// or s3://)")
	cmd.Flags().DurationVar(&opts.SnapshotInterval, "snapshot-interval", 1*time.Minute, "how often to persist the rumor state")
	cmd.Flags().DurationVar(&opts.PurgeInterval, "purge-interval", 5*time.Minute, "how often to purge expired rumors")
	return cmd
}

func runAgent() error {
	if opts.Name == "" {
		opts.Name = uuid.New().String()
	}
	if opts.GossipHost == "" {
		host, err := netutil.DetectHostIPv4()
		if err != nil {
			return err
		}
		opts.GossipHost = host
	}
	observer, err := rumor.NewPrometheusObserver(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	state := rumor.NewState(observer)

	file, err := dat.New(opts.DatFile)
	if err != nil {
		return err
	}
	runner := &snapshot.Runner{
		State:    state,
		File:     file,
		Interval: opts.SnapshotInterval,
	}
	if opts.SnapshotBackup != "" {
		if runner.Backup, err = snapshot.New(opts.SnapshotBackup); err != nil {
			return err
		}
	}
	// The dat file is fatal at startup when present but unreadable.
	if err := runner.Restore(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := gossip.New(&gossip.Config{
		Name:       opts.Name,
		GossipHost: opts.GossipHost,
		GossipPort: opts.GossipPort,
		LogLevel:   zapcore.InfoLevel,
	}, state)
	defer g.Shutdown()

	if err := g.Start(ctx, opts.BootstrapAddrs); err != nil {
		return err
	}

	go runner.Run(ctx)
	go watchEvents(ctx, g, state)
	go purgeLoop(ctx, state)

	log.Info("butterflyd running",
		zap.String("name", opts.Name),
		zap.String("dat-file", opts.DatFile),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Infof("received signal %v, shutting down", sig)
	case <-ctx.Done():
	}
	return nil
}

// watchEvents turns memberlist node events into membership rumors.
func watchEvents(ctx context.Context, g *gossip.Gossip, state *rumor.State) {
	for {
		select {
		case ev, ok := <-g.Events():
			if !ok {
				return
			}
			if ev.Node == nil {
				log.Debug("discarded null event")
				continue
			}
			m := &rumor.Membership{
				Member: rumor.Member{
					ID:          ev.Node.Name,
					Address:     ev.Node.Addr.String(),
					GossipPort:  int32(ev.Node.Port),
					Incarnation: uint64(time.Now().Unix()),
				},
				Health:     healthForEvent(ev.Event),
				FromID:     opts.Name,
				Expiration: rumor.Forever(),
			}
			if state.InsertMembership(m) {
				if err := g.Broadcast(rumor.NewRumorKey(rumor.KindMember, m.Member.ID, "")); err != nil {
					log.Debugf("cannot broadcast membership: %v", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func healthForEvent(ev memberlist.NodeEventType) rumor.Health {
	switch ev {
	case memberlist.NodeJoin, memberlist.NodeUpdate:
		return rumor.Alive
	case memberlist.NodeLeave:
		return rumor.Confirmed
	}
	return rumor.Suspect
}

func purgeLoop(ctx context.Context, state *rumor.State) {
	ticker := time.NewTicker(opts.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			state.PurgeExpired(time.Now())
		case <-ctx.Done():
			return
		}
	}
}
