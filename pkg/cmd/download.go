package cmd

import (
	"fmt"
	"io"

	"github.com/pkgpin/pkgpin/pkg/fetcher"
	"github.com/pkgpin/pkgpin/pkg/locator"
	"github.com/pkgpin/pkgpin/pkg/store"
	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <locator> [dir]",
		Short: "Resolve a locator and download its contents",
		Long: `Resolves the locator and unpacks the package into dir. Without dir the
package goes into the store under ~/.pkgpin/cache. The sha256 digest of the
unpacked files is printed either way.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runDownload,
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	spec := args[0]

	reg, err := newRegistry(DevCfg)
	if err != nil {
		return err
	}

	var res result
	if len(args) == 2 {
		dir := args[1]
		l, err := reg.Download(ctx, spec, dir)
		if err != nil {
			return err
		}
		digest, err := store.Digest(dir)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", dir, err)
		}
		res = newResult(spec, l)
		res.Dir, res.Digest = dir, digest
	} else {
		s, err := store.Default()
		if err != nil {
			return err
		}
		l := locator.Parse(spec)
		f, err := reg.For(l)
		if err != nil {
			return err
		}
		l, err = fetcher.Resolve(ctx, f, l)
		if err != nil {
			return err
		}
		entry, err := s.Put(l, func(dir string) error {
			_, err := f.Download(ctx, l.Clone(), dir)
			return err
		})
		if err != nil {
			return err
		}
		res = newResult(spec, l)
		res.Dir, res.Digest = entry.Dir, entry.Digest
	}

	return render(cmd.OutOrStdout(), DevCfg.Output, res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s\n  dir:    %s\n  digest: %s\n", res.Locator, res.Dir, res.Digest)
		return err
	})
}
