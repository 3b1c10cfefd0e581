package dump

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fleetops/butterfly/pkg/dat"
	"github.com/fleetops/butterfly/pkg/rumor"
)

var opts struct {
	JSON bool
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dump <dat-file>",
		Short:         "print the contents of a rumor snapshot file",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := dat.New(args[0])
			if err != nil {
				return err
			}
			contents, err := f.Read()
			if err != nil {
				return err
			}
			state := rumor.NewState(nil)
			contents.RestoreInto(state)
			if opts.JSON {
				data, err := json.MarshalIndent(state, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			printState(state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print raw JSON projection")
	return cmd
}

func printState(state *rumor.State) {
	fmt.Println("members:")
	state.Memberships.WithRumors("", func(m *rumor.Membership) {
		fmt.Printf("  %s %s (incarnation %d, %s)\n",
			healthColor(m.Health), m.Member.ID, m.Member.Incarnation, m.Member.Address)
	})

	fmt.Println("departures:")
	state.Departures.WithRumors(rumor.DepartureKey, func(d *rumor.Departure) {
		fmt.Printf("  %s\n", d.MemberID)
	})

	fmt.Println("services:")
	groups := make(map[string][]*rumor.Service)
	state.Services.WithKeys(func(key string, rumors map[string]*rumor.Service) {
		for _, s := range rumors {
			groups[key] = append(groups[key], s)
		}
	})
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s:\n", k)
		sort.Slice(groups[k], func(i, j int) bool { return groups[k][i].MemberID < groups[k][j].MemberID })
		for _, s := range groups[k] {
			fmt.Printf("    %s running %s (incarnation %d)\n", s.MemberID, s.Pkg, s.Incarnation)
		}
	}

	fmt.Println("elections:")
	state.Elections.WithKeys(func(key string, rumors map[string]*rumor.Election) {
		if e, ok := rumors[rumor.ElectionID]; ok {
			fmt.Printf("  %s: %s leads term %d (%s, %d votes)\n",
				key, e.MemberID, e.Term, e.Phase, len(e.Votes))
		}
	})
}

func healthColor(h rumor.Health) string {
	switch h {
	case rumor.Alive:
		return color.GreenString("%-9s", h)
	case rumor.Suspect:
		return color.YellowString("%-9s", h)
	default:
		return color.RedString("%-9s", h)
	}
}
