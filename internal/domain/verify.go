package domain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"
	"github.com/zeebo/xxh3"

	"vss2git.dev/pkg/vss2git/internal/adapter"
	"vss2git.dev/pkg/vss2git/internal/controller"
	m "vss2git.dev/pkg/vss2git/internal/model"
)

// VerifyOptions configure a post-migration comparison.
type VerifyOptions struct {
	Project    m.Path
	Exclude    []string
	ExportRoot bool
	Transcode  bool
}

// Mismatch is one divergence between the replayed source state and the
// exported work tree.
type Mismatch struct {
	Path string `yaml:"path"`
	// Kind is "missing", "extra", or "content".
	Kind string `yaml:"kind"`
	Diff string `yaml:"diff,omitempty"`
}

// VerifyReport summarizes a comparison run.
type VerifyReport struct {
	Checked    int        `yaml:"checked"`
	Mismatches []Mismatch `yaml:"mismatches,omitempty"`
}

// Clean reports whether no mismatch was found.
func (r *VerifyReport) Clean() bool {
	return len(r.Mismatches) == 0
}

// Verify replays the source's full history state-only into a memory
// filesystem and compares the resulting head state file by file against the
// exported work tree at outDir. Content comparison is by hash; text
// mismatches additionally carry a unified diff.
func Verify(ctx context.Context, src adapter.Source, outDir string, opts VerifyOptions) (*VerifyReport, error) {
	memFs := afero.NewMemMapFs()

	mig, err := NewMigration(src, &adapter.RecordingBackend{}, &controller.AutoUI{Choice: controller.ChoiceAbort}, memFs, MigrationOptions{
		Project:    opts.Project,
		Exclude:    opts.Exclude,
		ExportRoot: opts.ExportRoot,
		Transcode:  opts.Transcode,
		DryRun:     true,
	})
	if err != nil {
		return nil, err
	}

	progress := NopProgress{}
	for _, stage := range mig.Stages() {
		if err := stage.Run(ctx, progress); err != nil {
			return nil, fmt.Errorf("replay source history: %w", err)
		}
	}

	report := &VerifyReport{}

	expected, err := hashTree(memFs, "")
	if err != nil {
		return nil, fmt.Errorf("hash replayed state: %w", err)
	}

	actualFs := afero.NewBasePathFs(afero.NewOsFs(), outDir)

	actual, err := hashTree(actualFs, ".git")
	if err != nil {
		return nil, fmt.Errorf("hash exported tree: %w", err)
	}

	paths := make([]string, 0, len(expected))
	for p := range expected {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, p := range paths {
		report.Checked++

		got, ok := actual[p]
		if !ok {
			report.Mismatches = append(report.Mismatches, Mismatch{Path: p, Kind: "missing"})
			continue
		}

		delete(actual, p)

		if got == expected[p] {
			continue
		}

		report.Mismatches = append(report.Mismatches, Mismatch{
			Path: p,
			Kind: "content",
			Diff: contentDiff(memFs, actualFs, p),
		})
	}

	extras := make([]string, 0, len(actual))
	for p := range actual {
		extras = append(extras, p)
	}

	sort.Strings(extras)

	for _, p := range extras {
		report.Mismatches = append(report.Mismatches, Mismatch{Path: p, Kind: "extra"})
	}

	return report, nil
}

// hashTree walks fs and returns a path-to-content-hash map, skipping the
// named top-level directory.
func hashTree(fs afero.Fs, skip string) (map[string]uint64, error) {
	out := map[string]uint64{}

	err := afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		clean := strings.TrimPrefix(filepath.ToSlash(path), "/")

		if info.IsDir() {
			if skip != "" && clean == skip {
				return filepath.SkipDir
			}

			return nil
		}

		content, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}

		out[clean] = xxh3.Hash(content)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func contentDiff(expectedFs, actualFs afero.Fs, path string) string {
	// Both trees are read "/"-rooted, the same spelling they were hashed
	// under.
	want, err1 := afero.ReadFile(expectedFs, "/"+path)
	got, err2 := afero.ReadFile(actualFs, "/"+path)

	if err1 != nil || err2 != nil {
		return ""
	}

	if bytes.IndexByte(want, 0) >= 0 || bytes.IndexByte(got, 0) >= 0 {
		return "(binary content differs)"
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(want)),
		B:        difflib.SplitLines(string(got)),
		FromFile: "replayed/" + path,
		ToFile:   "exported/" + path,
		Context:  3,
	})
	if err != nil {
		return ""
	}

	return diff
}
