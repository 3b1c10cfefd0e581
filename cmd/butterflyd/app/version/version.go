package version

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetops/butterfly/pkg/buildinfo"
	"github.com/fleetops/butterfly/pkg/log"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "butterflyd version",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := json.Marshal(map[string]string{
				"Version":   buildinfo.Version,
				"GitSHA":    buildinfo.GitSHA,
				"GoVersion": buildinfo.GoVersion,
			})
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("%s\n", data)
		},
	}
	return cmd
}
