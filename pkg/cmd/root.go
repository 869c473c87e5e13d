package cmd

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkgpin/pkgpin/pkg/config"
	"github.com/spf13/cobra"
)

var (
	flagVerbose     bool
	flagOutput      string
	flagNpmRegistry string
	flagNpmClient   string
	flagNugetFeed   string
	flagTimeout     time.Duration

	// DevCfg holds the resolved developer configuration, available to all
	// subcommands after PersistentPreRunE completes.
	DevCfg *config.DevConfig
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pkgpin",
		Short: "Package locator resolver",
		Long: `pkgpin resolves loose package locators such as npm+async or
nuget+elmah$[1.0,2.0) into fully pinned, registry-verified locators.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]any{
				"output":       flagOutput,
				"npm_registry": flagNpmRegistry,
				"npm_client":   flagNpmClient,
				"nuget_feed":   flagNugetFeed,
				"timeout":      flagTimeout,
			}
			if flagVerbose {
				overrides["log_level"] = "debug"
			}
			cfg, err := config.LoadDevConfig(overrides)
			if err != nil {
				return err
			}
			DevCfg = cfg

			level, _ := log.ParseLevel(cfg.LogLevel)
			logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{Level: level})
			cmd.SetContext(log.WithContext(contextOf(cmd), logger))
			return nil
		},
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "log every resolution stage")
	flags.StringVarP(&flagOutput, "output", "o", "", "output format: text, json or yaml")
	flags.StringVar(&flagNpmRegistry, "npm-registry", "", "npm registry URL")
	flags.StringVar(&flagNpmClient, "npm-client", "", "npm registry client: http or cli")
	flags.StringVar(&flagNugetFeed, "nuget-feed", "", "NuGet OData feed URL")
	flags.DurationVar(&flagTimeout, "timeout", 0, "timeout for each registry request")

	root.AddCommand(newInitCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newDownloadCmd())
	root.AddCommand(newPinCmd())

	return root
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
