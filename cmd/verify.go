package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"vss2git.dev/pkg/vss2git/internal/adapter"
	"vss2git.dev/pkg/vss2git/internal/domain"
	m "vss2git.dev/pkg/vss2git/internal/model"
)

var (
	verifyVssDirFlag     string
	verifyProjectFlag    string
	verifyOutDirFlag     string
	verifyExcludeFlag    []string
	verifyExportRootFlag bool
	verifyTranscodeFlag  bool
	verifyReportFlag     string
)

// errVerifyMismatch makes the command exit non-zero without a usage dump.
var errVerifyMismatch = errors.New("exported tree diverges from source history")

// verifyCmd represents the verify command.
var verifyCmd = newVerifyCmd()

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare an exported tree against the source history",
		Long: `Replay the archive's history without committing and compare the final
file state against the exported work tree. Reports files that are missing,
unexpected, or differ in content.`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			vssDir, outDir, opts, err := verifyConfig()
			if err != nil {
				return err
			}

			return runVerify(cmd, vssDir, outDir, opts)
		},
	}

	configureVerifyFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func configureVerifyFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&verifyVssDirFlag, vssDirFlagName, viper.GetString(vssDirKey), "source archive directory or journal file")
	bindFlagToConfig(cmd.Flags().Lookup(vssDirFlagName), vssDirKey)

	cmd.Flags().StringVarP(&verifyProjectFlag, projectFlagName, "p", viper.GetString(projectKey), "source project subpath to compare")
	bindFlagToConfig(cmd.Flags().Lookup(projectFlagName), projectKey)

	cmd.Flags().StringVarP(&verifyOutDirFlag, outDirFlagName, "o", viper.GetString(outDirKey), "exported git work tree directory")
	bindFlagToConfig(cmd.Flags().Lookup(outDirFlagName), outDirKey)

	cmd.Flags().StringArrayVarP(&verifyExcludeFlag, excludeFlagName, "x", viper.GetStringSlice(excludeKey), "exclude items matching glob (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(excludeFlagName), excludeKey)

	cmd.Flags().BoolVar(&verifyExportRootFlag, exportRootFlagName, viper.GetBool(exportRootKey), "the export used the project subtree as the repository root")
	bindFlagToConfig(cmd.Flags().Lookup(exportRootFlagName), exportRootKey)

	cmd.Flags().BoolVar(&verifyTranscodeFlag, transcodeFlagName, viper.GetBool(transcodeKey), "the export decoded legacy codepage content to UTF-8")
	bindFlagToConfig(cmd.Flags().Lookup(transcodeFlagName), transcodeKey)

	cmd.Flags().StringVar(&verifyReportFlag, reportFlagName, "", "write the full report as YAML to this file")
}

func verifyConfig() (string, string, domain.VerifyOptions, error) {
	var errs []error

	vssDir := viper.GetString(vssDirKey)
	if vssDir == "" {
		errs = append(errs, errors.New("source archive path is required (--vss-dir)"))
	} else if _, err := os.Stat(vssDir); err != nil {
		errs = append(errs, fmt.Errorf("source archive path: %w", err))
	}

	outDir := viper.GetString(outDirKey)
	if outDir == "" {
		errs = append(errs, errors.New("exported tree directory is required (--out-dir)"))
	} else if _, err := os.Stat(outDir); err != nil {
		errs = append(errs, fmt.Errorf("exported tree directory: %w", err))
	}

	if len(errs) > 0 {
		return "", "", domain.VerifyOptions{}, errors.Join(errs...)
	}

	opts := domain.VerifyOptions{
		Project:    m.Path(viper.GetString(projectKey)),
		Exclude:    viper.GetStringSlice(excludeKey),
		ExportRoot: viper.GetBool(exportRootKey),
		Transcode:  viper.GetBool(transcodeKey),
	}

	return vssDir, outDir, opts, nil
}

func runVerify(cmd *cobra.Command, vssDir, outDir string, opts domain.VerifyOptions) error {
	src, err := adapter.LoadArchive(vssDir)
	if err != nil {
		return err
	}

	report, err := domain.Verify(cmd.Context(), src, outDir, opts)
	if err != nil {
		return err
	}

	if verifyReportFlag != "" {
		if err := writeVerifyReport(verifyReportFlag, report); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()

	if report.Clean() {
		fmt.Fprintf(out, "verified %d files, no differences\n", report.Checked)

		return nil
	}

	for _, mm := range report.Mismatches {
		fmt.Fprintf(out, "%s: %s\n", mm.Kind, mm.Path)

		if mm.Diff != "" {
			fmt.Fprintln(out, mm.Diff)
		}
	}

	fmt.Fprintf(out, "verified %d files, %d differences\n", report.Checked, len(report.Mismatches))

	cmd.SilenceUsage = true

	return errVerifyMismatch
}

func writeVerifyReport(path string, report *domain.VerifyReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
