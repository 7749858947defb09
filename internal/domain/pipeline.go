package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"vss2git.dev/pkg/vss2git/internal/adapter"
	"vss2git.dev/pkg/vss2git/internal/controller"
	m "vss2git.dev/pkg/vss2git/internal/model"
	"vss2git.dev/pkg/vss2git/pkg"
)

// MigrationOptions is the full configuration surface of one migration run.
type MigrationOptions struct {
	Project        m.Path
	Exclude        []string
	EmailDomain    string
	DefaultComment string
	AnyComment     time.Duration
	SameComment    time.Duration
	Transcode      bool
	AnnotatedTags  bool
	ExportRoot     bool
	From           time.Time
	To             time.Time
	// DryRun replays every changeset state-only; nothing reaches the
	// backend.
	DryRun bool
}

// Migration owns one run of the three-stage pipeline. The collector's output
// and the builder's output flow between stages through the Migration itself,
// never through shared globals.
type Migration struct {
	src     adapter.Source
	backend adapter.GitBackend
	ui      controller.UI
	fs      afero.Fs
	trans   *adapter.Transcoder
	matcher pkg.Matcher
	opts    MigrationOptions

	history *History
	sets    pkg.Spool[m.Changeset]
}

// NewMigration assembles a migration over the given collaborators. fs is the
// target work tree filesystem the exporter materializes into.
func NewMigration(src adapter.Source, backend adapter.GitBackend, ui controller.UI, fs afero.Fs, opts MigrationOptions) (*Migration, error) {
	matcher, err := pkg.NewMatcher(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("compile exclude patterns: %w", err)
	}

	if opts.Project == "" {
		opts.Project = m.RootProject
	}

	return &Migration{
		src:     src,
		backend: backend,
		ui:      ui,
		fs:      fs,
		trans:   adapter.NewTranscoder(opts.Transcode),
		matcher: matcher,
		opts:    opts,
	}, nil
}

// Stages returns the pipeline's work units in execution order, for the
// scheduler to own.
func (mg *Migration) Stages() []Stage {
	return []Stage{
		{Name: m.StageCollect, Run: mg.collect},
		{Name: m.StageBuild, Run: mg.build},
		{Name: m.StageExport, Run: mg.export},
	}
}

func (mg *Migration) collect(ctx context.Context, progress Progress) error {
	collector := NewCollector(mg.src, mg.matcher, mg.ui, mg.trans)

	h, err := collector.Collect(ctx, mg.opts.Project, progress)
	if err != nil {
		return err
	}

	mg.history = h

	return nil
}

func (mg *Migration) build(ctx context.Context, progress Progress) error {
	builder := NewBuilder(BuilderOptions{
		AnyComment:  mg.opts.AnyComment,
		SameComment: mg.opts.SameComment,
		From:        mg.opts.From,
		To:          mg.opts.To,
	})

	sets, err := builder.Build(ctx, mg.history, progress)
	if err != nil {
		return err
	}

	if mg.opts.DryRun {
		for i := range sets {
			sets[i].StateOnly = true
		}
	}

	spool, err := pkg.NewSpool[m.Changeset]("changesets")
	if err != nil {
		return fmt.Errorf("spool changesets: %w", err)
	}

	if err := spool.AppendBatch(sets); err != nil {
		_ = spool.Close()

		return fmt.Errorf("spool changesets: %w", err)
	}

	mg.sets = spool

	return nil
}

func (mg *Migration) export(ctx context.Context, progress Progress) error {
	defer func() {
		if err := mg.sets.Close(); err != nil {
			slog.Warn("failed to close changeset spool", "error", err)
		}
	}()

	exportOpts := ExportOptions{
		Project:        mg.opts.Project,
		ExportRoot:     mg.opts.ExportRoot,
		EmailDomain:    mg.opts.EmailDomain,
		DefaultComment: mg.opts.DefaultComment,
		AnnotatedTags:  mg.opts.AnnotatedTags,
	}

	if !mg.opts.DryRun {
		if err := mg.backend.Init(ctx); err != nil {
			return fmt.Errorf("prepare target repository: %w", err)
		}
	}

	wt := NewWorkTree(mg.fs, PathMapper(exportOpts))
	exporter := NewExporter(wt, mg.backend, mg.ui, mg.trans, exportOpts)

	return exporter.Export(ctx, mg.history, mg.sets, progress)
}
