package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/pkgpin/pkgpin/pkg/config"
	"github.com/pkgpin/pkgpin/pkg/project"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new pkgpin project",
		Long:  "Creates a pkgpin.toml manifest, records the enabled backends in pkgpin.local.toml and configures .gitignore entries.",
		RunE:  runInit,
		// init does not need dev config resolution; skip the root PersistentPreRunE.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	initCmd.Flags().String("name", "", "project name (default: the directory name)")
	initCmd.Flags().StringSlice("backends", nil, "registry backends to enable, skipping the prompt (npm,nuget)")
	return initCmd
}

func runInit(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = project.InferName(wd)
	}

	if err := project.Init(wd, name, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", project.ManifestFile)

	backends, _ := cmd.Flags().GetStringSlice("backends")
	if len(backends) == 0 {
		if backends, err = promptBackends(); err != nil {
			return err
		}
	}

	devCfg := &config.DevConfig{Backends: backends}
	if err := devCfg.ValidateBackends(); err != nil {
		return err
	}
	if err := config.WriteLocalDevConfig(wd, devCfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enabled backends %v in %s\n", backends, config.LocalConfigFile)

	added, err := project.EnsureGitignore(wd, project.IgnoredFiles)
	if err != nil {
		return err
	}
	for _, entry := range added {
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s to .gitignore\n", entry)
	}

	return nil
}

// promptBackends uses huh to present a multi-select of registry backends.
func promptBackends() ([]string, error) {
	options := make([]huh.Option[string], len(config.Backends))
	for i, b := range config.Backends {
		options[i] = huh.NewOption(b, b).Selected(true)
	}

	var selected []string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Which registries should pkgpin resolve against?").
				Options(options...).
				Value(&selected),
		),
	).Run()
	if err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}

	return selected, nil
}
