package app

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/fleetops/butterfly/cmd/butterflyd/app/dump"
	"github.com/fleetops/butterfly/cmd/butterflyd/app/run"
	"github.com/fleetops/butterfly/cmd/butterflyd/app/version"
	"github.com/fleetops/butterfly/pkg/log"
)

var opts struct {
	Verbose bool
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "butterflyd",
		Short: "gossip-based cluster state agent",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				log.SetLevel(zapcore.DebugLevel)
			}
		},
	}

	cmd.AddCommand(
		newCompletionCmd(cmd),
		run.NewCommand(),
		dump.NewCommand(),
		version.NewCommand(),
	)

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose log output (debug)")
	return cmd
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Generates bash completion scripts",
		Run: func(cmd *cobra.Command, args []string) {
			w := os.Stdout
			if len(args) > 0 {
				var err error
				w, err = os.OpenFile(args[0], os.O_RDWR|os.O_CREATE, 0644)
				if err != nil {
					log.Fatal(err)
				}
				defer w.Close()
			}
			if err := rootCmd.GenBashCompletion(w); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
