package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/storefront/core"
)

// VersionInfo is printed by the version command
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{Version: core.Version, GitCommit: core.GitCommit, BuildDate: core.BuildDate}
			return newFormatter(cmd, rootOpts).Success(info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "storefront %s (commit %s, built %s)\n", info.Version, info.GitCommit, info.BuildDate)
				return err
			})
		},
	}
}
