package cli

import (
	"github.com/spf13/cobra"

	"xin/internal/common/version"
	"xin/internal/envelope"
)

func newVersionCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the xin version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "version", func(inv *invocation) (any, envelope.Meta, error) {
				return struct {
					Version   string `json:"version"`
					UserAgent string `json:"userAgent"`
				}{version.Get(), version.UserAgent()}, envelope.Meta{}, nil
			})
		},
	}
}
