package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgpin/pkgpin/pkg/config"
	"github.com/pkgpin/pkgpin/pkg/pinner"
	"github.com/pkgpin/pkgpin/pkg/project"
	"github.com/pkgpin/pkgpin/pkg/store"
	"github.com/spf13/cobra"
)

func newPinCmd() *cobra.Command {
	pinCmd := &cobra.Command{
		Use:   "pin [name=locator]...",
		Short: "Pin every dependency in pkgpin.toml",
		Long: `Resolves every dependency listed in pkgpin.toml and writes the fully
pinned locators to pkgpin.lock. Arguments of the form name=locator are added
to the manifest first.

Dependencies whose locator has not changed since the last pin keep their
pinned revision.`,
		RunE: runPin,
	}
	pinCmd.Flags().Bool("download", false, "also download every package into the store and record its digest")
	return pinCmd
}

func runPin(cmd *cobra.Command, args []string) error {
	download, err := cmd.Flags().GetBool("download")
	if err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	for _, arg := range args {
		name, spec, ok := strings.Cut(arg, "=")
		if !ok || name == "" || spec == "" {
			return fmt.Errorf("invalid dependency %q, expected name=locator", arg)
		}
		if err := project.AddDependency(wd, name, spec); err != nil {
			return err
		}
	}

	cfg, err := config.LoadFile(filepath.Join(wd, project.ManifestFile))
	if err != nil {
		return err
	}
	lockPath := filepath.Join(wd, config.PinFileName)
	existing, err := config.LoadLockFile(lockPath)
	if err != nil {
		return err
	}

	reg, err := newRegistry(DevCfg)
	if err != nil {
		return err
	}
	p := &pinner.Pinner{Registry: reg}
	if download {
		if p.Store, err = store.Default(); err != nil {
			return err
		}
	}

	lf, err := p.PinAll(cmd.Context(), cfg, existing)
	if err != nil {
		return err
	}
	if err := config.SaveLockFile(lockPath, lf); err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), DevCfg.Output, lf, func(w io.Writer) error {
		for _, pin := range lf.Pins {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", pin.Name, pin.Locator); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "Wrote %s\n", config.PinFileName)
		return err
	})
}
