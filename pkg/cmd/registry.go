package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkgpin/pkgpin/pkg/config"
	"github.com/pkgpin/pkgpin/pkg/fetcher"
	"github.com/pkgpin/pkgpin/pkg/fetcher/npm"
	"github.com/pkgpin/pkgpin/pkg/fetcher/nuget"
)

// newRegistry builds a fetcher for every backend enabled in cfg.
func newRegistry(cfg *config.DevConfig) (*fetcher.Registry, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	var fetchers []fetcher.Fetcher
	if cfg.Enabled(npm.Name) {
		var reg npm.Registry
		switch cfg.NpmClient {
		case "cli":
			reg = npm.NewCLIRegistry("", cfg.NpmRegistry)
		default:
			reg = npm.NewHTTPRegistry(
				npm.WithBaseURL(cfg.NpmRegistry),
				npm.WithNpmrc(npmrcPath(cfg)),
				npm.WithHTTPClient(client),
			)
		}
		fetchers = append(fetchers, npm.New(reg, npm.WithDownloadClient(client)))
	}
	if cfg.Enabled(nuget.Name) {
		feed := nuget.NewODataFeed(cfg.NugetFeed, client)
		fetchers = append(fetchers, nuget.New(feed, nuget.WithDownloadClient(client)))
	}
	if len(fetchers) == 0 {
		return nil, fmt.Errorf("no backends enabled; set backends in %s", config.LocalConfigFile)
	}
	return fetcher.NewRegistry(fetchers...)
}

// npmrcPath is the configured .npmrc, or ~/.npmrc.
func npmrcPath(cfg *config.DevConfig) string {
	if cfg.Npmrc != "" {
		return cfg.Npmrc
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".npmrc")
}
