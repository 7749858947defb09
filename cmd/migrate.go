package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"vss2git.dev/pkg/vss2git/internal/adapter"
	"vss2git.dev/pkg/vss2git/internal/controller"
	"vss2git.dev/pkg/vss2git/internal/domain"
	m "vss2git.dev/pkg/vss2git/internal/model"
)

var (
	migrateVssDirFlag       string
	migrateProjectFlag      string
	migrateOutDirFlag       string
	migrateExcludeFlag      []string
	migrateEmailDomainFlag  string
	migrateCommentFlag      string
	migrateAnyCommentFlag   int
	migrateSameCommentFlag  int
	migrateTranscodeFlag    bool
	migrateAnnotatedFlag    bool
	migrateExportRootFlag   bool
	migrateFromDateFlag     string
	migrateToDateFlag       string
	migrateIgnoreErrorsFlag bool
	migrateDryRunFlag       bool
	migrateInteractiveFlag  bool
)

// migrateCmd represents the migrate command.
var migrateCmd = newMigrateCmd()

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the full history migration",
		Long: `Collect the archive's revision history, group it into changesets, and
replay them as git commits. Optional date bounds allow exporting a prefix
and resuming later without duplicating commits.`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, vssDir, outDir, err := migrateConfig()
			if err != nil {
				return err
			}

			return runMigration(cmd, opts, vssDir, outDir)
		},
	}

	configureMigrateFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func configureMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&migrateVssDirFlag, vssDirFlagName, viper.GetString(vssDirKey), "source archive directory or journal file")
	bindFlagToConfig(cmd.Flags().Lookup(vssDirFlagName), vssDirKey)

	cmd.Flags().StringVarP(&migrateProjectFlag, projectFlagName, "p", viper.GetString(projectKey), "source project subpath to export")
	bindFlagToConfig(cmd.Flags().Lookup(projectFlagName), projectKey)

	cmd.Flags().StringVarP(&migrateOutDirFlag, outDirFlagName, "o", viper.GetString(outDirKey), "target git work tree directory")
	bindFlagToConfig(cmd.Flags().Lookup(outDirFlagName), outDirKey)

	cmd.Flags().StringArrayVarP(&migrateExcludeFlag, excludeFlagName, "x", viper.GetStringSlice(excludeKey), "exclude items matching glob (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(excludeFlagName), excludeKey)

	cmd.Flags().StringVar(&migrateEmailDomainFlag, emailDomainFlagName, viper.GetString(emailDomainKey), "domain for derived author emails")
	bindFlagToConfig(cmd.Flags().Lookup(emailDomainFlagName), emailDomainKey)

	cmd.Flags().StringVar(&migrateCommentFlag, defaultCommentFlagName, viper.GetString(defaultCommentKey), "commit message for changesets without comments")
	bindFlagToConfig(cmd.Flags().Lookup(defaultCommentFlagName), defaultCommentKey)

	cmd.Flags().IntVar(&migrateAnyCommentFlag, anyCommentFlagName, viper.GetInt(anyCommentKey), "merge window in seconds regardless of comment")
	bindFlagToConfig(cmd.Flags().Lookup(anyCommentFlagName), anyCommentKey)

	cmd.Flags().IntVar(&migrateSameCommentFlag, sameCommentFlagName, viper.GetInt(sameCommentKey), "merge window in seconds for matching user and comment")
	bindFlagToConfig(cmd.Flags().Lookup(sameCommentFlagName), sameCommentKey)

	cmd.Flags().BoolVar(&migrateTranscodeFlag, transcodeFlagName, viper.GetBool(transcodeKey), "decode legacy codepage comments and text content to UTF-8")
	bindFlagToConfig(cmd.Flags().Lookup(transcodeFlagName), transcodeKey)

	cmd.Flags().BoolVar(&migrateAnnotatedFlag, annotatedTagsFlagName, viper.GetBool(annotatedTagsKey), "write annotated instead of lightweight tags")
	bindFlagToConfig(cmd.Flags().Lookup(annotatedTagsFlagName), annotatedTagsKey)

	cmd.Flags().BoolVar(&migrateExportRootFlag, exportRootFlagName, viper.GetBool(exportRootKey), "export the project subtree as the repository root")
	bindFlagToConfig(cmd.Flags().Lookup(exportRootFlagName), exportRootKey)

	cmd.Flags().StringVar(&migrateFromDateFlag, fromDateFlagName, "", "resume point: replay up to this date state-only (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&migrateToDateFlag, toDateFlagName, "", "stop after the changeset containing this date (RFC3339 or YYYY-MM-DD)")

	cmd.Flags().BoolVar(&migrateIgnoreErrorsFlag, ignoreErrorsFlagName, viper.GetBool(ignoreErrorsKey), "answer Ignore to every recoverable error")
	bindFlagToConfig(cmd.Flags().Lookup(ignoreErrorsFlagName), ignoreErrorsKey)

	cmd.Flags().BoolVar(&migrateDryRunFlag, dryRunFlagName, false, "replay everything without committing")

	cmd.Flags().BoolVarP(&migrateInteractiveFlag, interactiveFlagName, "i", viper.GetBool(interactiveKey), "show the live status view")
	bindFlagToConfig(cmd.Flags().Lookup(interactiveFlagName), interactiveKey)
}

// migrateConfig validates the configuration surface up front and reports
// every failure at once, before any pipeline work starts.
func migrateConfig() (domain.MigrationOptions, string, string, error) {
	var errs []error

	vssDir := viper.GetString(vssDirKey)
	if vssDir == "" {
		errs = append(errs, errors.New("source archive path is required (--vss-dir)"))
	} else if _, err := os.Stat(vssDir); err != nil {
		errs = append(errs, fmt.Errorf("source archive path: %w", err))
	}

	outDir := viper.GetString(outDirKey)
	if outDir == "" && !migrateDryRunFlag {
		errs = append(errs, errors.New("target directory is required (--out-dir)"))
	}

	anySecs := viper.GetInt(anyCommentKey)
	if anySecs < 0 {
		errs = append(errs, fmt.Errorf("%s must be non-negative, got %d", anyCommentFlagName, anySecs))
	}

	sameSecs := viper.GetInt(sameCommentKey)
	if sameSecs < 0 {
		errs = append(errs, fmt.Errorf("%s must be non-negative, got %d", sameCommentFlagName, sameSecs))
	}

	from, err := parseDateFlag(migrateFromDateFlag)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", fromDateFlagName, err))
	}

	to, err := parseDateFlag(migrateToDateFlag)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", toDateFlagName, err))
	}

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		errs = append(errs, fmt.Errorf("%s is after %s", fromDateFlagName, toDateFlagName))
	}

	if len(errs) > 0 {
		return domain.MigrationOptions{}, "", "", errors.Join(errs...)
	}

	opts := domain.MigrationOptions{
		Project:        m.Path(viper.GetString(projectKey)),
		Exclude:        viper.GetStringSlice(excludeKey),
		EmailDomain:    viper.GetString(emailDomainKey),
		DefaultComment: viper.GetString(defaultCommentKey),
		AnyComment:     time.Duration(anySecs) * time.Second,
		SameComment:    time.Duration(sameSecs) * time.Second,
		Transcode:      viper.GetBool(transcodeKey),
		AnnotatedTags:  viper.GetBool(annotatedTagsKey),
		ExportRoot:     viper.GetBool(exportRootKey),
		From:           from,
		To:             to,
		DryRun:         migrateDryRunFlag,
	}

	return opts, vssDir, outDir, nil
}

func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}

	return t, nil
}

func runMigration(cmd *cobra.Command, opts domain.MigrationOptions, vssDir, outDir string) error {
	src, err := adapter.LoadArchive(vssDir)
	if err != nil {
		return err
	}

	var (
		backend adapter.GitBackend
		workFs  afero.Fs
	)

	if opts.DryRun {
		backend = &adapter.RecordingBackend{}
		workFs = afero.NewMemMapFs()
	} else {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create target directory: %w", err)
		}

		backend = adapter.NewExecGit(outDir)
		workFs = afero.NewBasePathFs(afero.NewOsFs(), outDir)
	}

	ui := selectUI(cmd)

	mig, err := domain.NewMigration(src, backend, ui, workFs, opts)
	if err != nil {
		return err
	}

	sched := domain.NewScheduler()

	group, ctx := errgroup.WithContext(cmd.Context())
	workerDone := make(chan struct{})

	group.Go(func() error {
		defer close(workerDone)

		return sched.Run(ctx, mig.Stages())
	})

	group.Go(func() error {
		if migrateInteractiveFlag {
			return controller.RunStatusView(sched.Snapshot, sched.Abort)
		}

		pollStatus(ctx, sched, ui, workerDone)

		return nil
	})

	runErr := group.Wait()

	printSummary(cmd, sched.Snapshot())

	if runErr != nil {
		ui.ShowFatal("migration failed", runErr)

		return runErr
	}

	return nil
}

func selectUI(cmd *cobra.Command) controller.UI {
	switch {
	case migrateInteractiveFlag:
		// The status view owns the terminal; errors cannot prompt.
		choice := controller.ChoiceAbort
		if migrateIgnoreErrorsFlag {
			choice = controller.ChoiceIgnore
		}

		return &controller.AutoUI{Choice: choice}
	case migrateIgnoreErrorsFlag:
		return &controller.AutoUI{Choice: controller.ChoiceIgnore, Out: cmd.OutOrStdout()}
	default:
		return controller.NewConsoleUI(cmd.InOrStdin(), cmd.OutOrStdout())
	}
}

// pollStatus is the display-only timer task: it snapshots the scheduler
// periodically and prints changed status lines through the shared UI sink,
// so it can never interleave with an open error prompt.
func pollStatus(ctx context.Context, sched *domain.Scheduler, ui controller.UI, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last string

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := sched.Snapshot()
			line := fmt.Sprintf("%s (revisions %d, commits %d)", snap.Status, snap.Revisions, snap.Commits)

			if line != last && snap.Status != "" {
				ui.Progress(snap.Stage, line)
				last = line
			}
		}
	}
}

func printSummary(cmd *cobra.Command, snap m.ProgressSnapshot) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Stage", "Files", "Revisions", "Changesets", "Commits", "Tags", "Ignored", "Active"})
	table.Append([]string{
		string(snap.Stage),
		strconv.Itoa(snap.Files),
		strconv.Itoa(snap.Revisions),
		strconv.Itoa(snap.Changesets),
		strconv.Itoa(snap.Commits),
		strconv.Itoa(snap.Tags),
		strconv.Itoa(snap.Ignored),
		snap.Active.Round(time.Millisecond).String(),
	})
	table.Render()
}
