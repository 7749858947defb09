package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"vss2git.dev/pkg/vss2git/internal/domain"
)

func writeVerifyFixture(t *testing.T) (string, string) {
	t.Helper()

	journal := `events:
  - {at: 2001-03-01T09:00:00Z, user: alice, op: add, path: $/README, content: "hello"}
`

	vssDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(vssDir, "journal.yaml"), []byte(journal), 0o644))

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "README"), []byte("hello"), 0o644))

	return vssDir, outDir
}

func TestVerifyConfig_RequiresBothPaths(t *testing.T) {
	setKey(t, vssDirKey, "")
	setKey(t, outDirKey, "")

	_, _, _, err := verifyConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "source archive path is required")
	require.Contains(t, err.Error(), "exported tree directory is required")
}

func TestRunVerify_CleanTree(t *testing.T) {
	vssDir, outDir := writeVerifyFixture(t)

	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	require.NoError(t, runVerify(cmd, vssDir, outDir, domain.VerifyOptions{}))
	require.Contains(t, out.String(), "no differences")
}

func TestRunVerify_MismatchFailsAndWritesReport(t *testing.T) {
	vssDir, outDir := writeVerifyFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "README"), []byte("tampered"), 0o644))

	reportPath := filepath.Join(t.TempDir(), "report.yaml")
	verifyReportFlag = reportPath
	t.Cleanup(func() { verifyReportFlag = "" })

	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	err := runVerify(cmd, vssDir, outDir, domain.VerifyOptions{})
	require.ErrorIs(t, err, errVerifyMismatch)
	require.Contains(t, out.String(), "content: README")

	report, readErr := os.ReadFile(reportPath)
	require.NoError(t, readErr)
	require.Contains(t, string(report), "kind: content")
	require.Contains(t, string(report), "path: README")
}
