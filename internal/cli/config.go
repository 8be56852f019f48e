package cli

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newConfigCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration after file and environment overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := e.cfg

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Setting", "Value")
			table.Append("Base URL", cfg.BaseURL)
			table.Append("Refresh path", cfg.Refresh.Path)
			table.Append("Refresh timeout", cfg.Refresh.Timeout.String())
			table.Append("Refresh wait timeout", cfg.Refresh.WaitTimeout.String())
			table.Append("Proactive skew", cfg.Refresh.ProactiveSkew.String())
			table.Append("Login URL", cfg.Session.LoginURL)
			table.Append("Follow redirects", strconv.FormatBool(cfg.HTTP.FollowRedirects))
			table.Append("Store driver", cfg.Store.Driver)
			switch cfg.Store.Driver {
			case "redis":
				table.Append("Redis", cfg.Store.RedisAddr+" ("+cfg.Store.RedisPrefix+")")
			case "file":
				table.Append("File", cfg.Store.FilePath)
				table.Append("Sealed", strconv.FormatBool(cfg.Store.Passphrase != ""))
			}
			table.Append("Tracing", strconv.FormatBool(cfg.Tracing.Enabled))
			table.Append("Config file", orNone(e.cfgFile))
			return table.Render()
		},
	})
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
