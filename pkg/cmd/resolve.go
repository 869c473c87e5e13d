package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <locator>...",
		Short: "Resolve locators against their registries",
		Long: `Resolves each locator to a fully pinned one. Locators are resolved
concurrently and printed in the order given.

  pkgpin resolve npm+async 'npm+async$^1.5.0' 'nuget+elmah$[1.0,)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: runResolve,
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry(DevCfg)
	if err != nil {
		return err
	}

	results := make([]result, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, spec := range args {
		g.Go(func() error {
			l, err := reg.Resolve(ctx, spec)
			if err != nil {
				return err
			}
			results[i] = newResult(spec, l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var out any = results
	if len(results) == 1 {
		out = results[0]
	}
	return render(cmd.OutOrStdout(), DevCfg.Output, out, func(w io.Writer) error {
		for _, r := range results {
			if _, err := fmt.Fprintln(w, r.Locator); err != nil {
				return err
			}
		}
		return nil
	})
}
