package cli

import (
	"github.com/spf13/cobra"

	"xin/internal/config"
	"xin/internal/envelope"
)

func newConfigCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the account configuration file",
	}
	cmd.AddCommand(
		newConfigInitCmd(a),
		newConfigListCmd(a),
		newConfigSetDefaultCmd(a),
		newConfigShowCmd(a),
	)
	return cmd
}

func newConfigInitCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "config.init", func(inv *invocation) (any, envelope.Meta, error) {
				path, err := inv.path()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if inv.app.dryRun {
					return struct {
						DryRun     bool   `json:"dryRun"`
						ConfigPath string `json:"configPath"`
					}{true, path}, envelope.Meta{}, nil
				}
				if _, err := config.Init(path); err != nil {
					return nil, envelope.Meta{}, err
				}
				return struct {
					ConfigPath string `json:"configPath"`
				}{path}, envelope.Meta{}, nil
			})
		},
	}
}

func newConfigListCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "config.list", func(inv *invocation) (any, envelope.Meta, error) {
				path, err := inv.path()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				file, err := config.Load(path)
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				return struct {
					ConfigPath     string   `json:"configPath"`
					DefaultAccount string   `json:"defaultAccount,omitempty"`
					Accounts       []string `json:"accounts"`
				}{path, file.Defaults.Account, file.AccountNames()}, envelope.Meta{}, nil
			})
		},
	}
}

func newConfigSetDefaultCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default ACCOUNT",
		Short: "Pick the account used when --account is absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "config.set-default", func(inv *invocation) (any, envelope.Meta, error) {
				path, err := inv.path()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if inv.app.dryRun {
					return struct {
						DryRun         bool   `json:"dryRun"`
						DefaultAccount string `json:"defaultAccount"`
					}{true, args[0]}, envelope.Meta{}, nil
				}
				if err := config.SetDefaultAccount(path, args[0]); err != nil {
					return nil, envelope.Meta{}, err
				}
				return struct {
					DefaultAccount string `json:"defaultAccount"`
				}{args[0]}, envelope.Meta{}, nil
			})
		},
	}
}

func newConfigShowCmd(a *App) *cobra.Command {
	var effective bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored config with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "config.show", func(inv *invocation) (any, envelope.Meta, error) {
				path, err := inv.path()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if effective {
					res, err := inv.config()
					if err != nil {
						return nil, envelope.Meta{}, err
					}
					return struct {
						Effective config.Effective `json:"effective"`
					}{res.EffectiveView(path)}, envelope.Meta{}, nil
				}
				file, err := config.Load(path)
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				return struct {
					ConfigPath string       `json:"configPath"`
					Config     *config.File `json:"config"`
				}{path, file.Redacted()}, envelope.Meta{}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&effective, "effective", false, "show the merged env-plus-file view a command would run with")
	return cmd
}

func newAuthCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store credentials",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-token TOKEN",
		Short: "Store a bearer token for the selected account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "auth.set-token", func(inv *invocation) (any, envelope.Meta, error) {
				path, err := inv.path()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if inv.app.dryRun {
					return struct {
						DryRun     bool   `json:"dryRun"`
						ConfigPath string `json:"configPath"`
					}{true, path}, envelope.Meta{}, nil
				}
				name, err := config.SetToken(path, inv.app.account, args[0])
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				return struct {
					Account string `json:"account"`
				}{name}, envelope.Meta{}, nil
			})
		},
	})
	return cmd
}
