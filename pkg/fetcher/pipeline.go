package fetcher

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pkgpin/pkgpin/pkg/locator"
)

// State is the position of a locator in the resolution pipeline.
type State int

const (
	FetcherPending State = iota
	PackagePending
	RevisionPending
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case FetcherPending:
		return "fetcher-pending"
	case PackagePending:
		return "package-pending"
	case RevisionPending:
		return "revision-pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type stage struct {
	name string
	run  func(Fetcher, context.Context, *locator.Locator, bool) (*locator.Locator, error)
	next State
}

var stages = map[State]stage{
	FetcherPending:  {name: "fetcher", run: Fetcher.ResolveFetcher, next: PackagePending},
	PackagePending:  {name: "package", run: Fetcher.ResolvePackage, next: RevisionPending},
	RevisionPending: {name: "revision", run: Fetcher.ResolveRevision, next: Resolved},
}

// Pipeline drives one locator through the resolution stages. A Pipeline is
// used for a single resolution and is not safe for concurrent use.
type Pipeline struct {
	f     Fetcher
	loc   *locator.Locator
	state State
	err   error
	force bool
}

// NewPipeline returns a pipeline for l in state FetcherPending. With force
// set, every stage re-resolves components that are already resolved.
func NewPipeline(f Fetcher, l *locator.Locator, force bool) *Pipeline {
	return &Pipeline{f: f, loc: l, force: force}
}

func (p *Pipeline) State() State { return p.state }

// Step runs the stage for the current state and advances to the next one.
// It is a no-op once the pipeline is Resolved or Failed.
func (p *Pipeline) Step(ctx context.Context) State {
	st, ok := stages[p.state]
	if !ok {
		return p.state
	}

	logger := log.FromContext(ctx).With("fetcher", p.f.Name(), "stage", st.name)

	if err := ctx.Err(); err != nil {
		return p.fail(fmt.Errorf("resolving %s of %q: %w", st.name, p.loc, err))
	}

	logger.Debug("resolving", "locator", p.loc)
	next, err := st.run(p.f, ctx, p.loc, p.force)
	if err != nil {
		logger.Debug("stage failed", "locator", p.loc, "err", err)
		return p.fail(fmt.Errorf("resolving %s of %q: %w", st.name, p.loc, err))
	}

	p.loc = next
	p.state = st.next
	if p.state == Resolved {
		p.loc.Freeze()
		logger.Debug("resolved", "locator", p.loc)
	}
	return p.state
}

func (p *Pipeline) fail(err error) State {
	p.err = err
	p.loc = nil
	p.state = Failed
	return p.state
}

// Run steps the pipeline until it is Resolved or Failed.
func (p *Pipeline) Run(ctx context.Context) (*locator.Locator, error) {
	for p.state != Resolved && p.state != Failed {
		p.Step(ctx)
	}
	return p.loc, p.err
}

// Resolve runs all three stages of f on l in order. The locator is mutated
// in place and frozen on success. On failure the first stage error is
// returned and no locator; a partially resolved l must be discarded.
func Resolve(ctx context.Context, f Fetcher, l *locator.Locator) (*locator.Locator, error) {
	return NewPipeline(f, l, false).Run(ctx)
}

// ResolveString parses spec and resolves it with f.
func ResolveString(ctx context.Context, f Fetcher, spec string) (*locator.Locator, error) {
	return Resolve(ctx, f, locator.Parse(spec))
}

// Download resolves l with f and materializes its contents into dir.
func Download(ctx context.Context, f Fetcher, l *locator.Locator, dir string) (*locator.Locator, error) {
	return f.Download(ctx, l, dir)
}
