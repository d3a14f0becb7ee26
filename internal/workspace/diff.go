package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff is the full picture of a workspace's uncommitted changes.
type Diff struct {
	Staged   string
	Unstaged string
}

// IsClean reports whether neither half of the diff carries any content.
func (d Diff) IsClean() bool {
	return strings.TrimSpace(d.Staged) == "" && strings.TrimSpace(d.Unstaged) == ""
}

// GetDiff computes the staged and unstaged halves of dir's working
// tree. staged is relative to base if non-empty, else relative to the
// index; unstaged is the working tree's unstaged diff followed by a
// synthesized unified diff (against /dev/null) for every untracked,
// non-ignored file.
func GetDiff(ctx context.Context, dir, base string) (Diff, error) {
	stagedArgs := []string{"diff", "--cached"}
	if base != "" {
		stagedArgs = []string{"diff", base, "--"}
	}
	staged, err := runGitClean(ctx, dir, stagedArgs...)
	if err != nil {
		return Diff{}, err
	}

	unstaged, err := runGitClean(ctx, dir, "diff")
	if err != nil {
		return Diff{}, err
	}

	untracked, err := untrackedFiles(ctx, dir)
	if err != nil {
		return Diff{}, err
	}
	var synthesized strings.Builder
	for _, f := range untracked {
		d, err := syntheticDiff(dir, f)
		if err != nil {
			continue
		}
		synthesized.WriteString(d)
		synthesized.WriteByte('\n')
	}

	combinedUnstaged := unstaged
	if synthesized.Len() > 0 {
		combinedUnstaged = strings.TrimRight(unstaged, "\n") + "\n" + synthesized.String()
	}

	return Diff{Staged: staged, Unstaged: combinedUnstaged}, nil
}

// untrackedFiles lists working-tree files git does not track, honoring
// .gitignore.
func untrackedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := runGitClean(ctx, dir, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// syntheticDiff builds a unified-diff-shaped representation of a brand
// new file against /dev/null, the same shape `git diff` would produce
// for an added file, since git itself never diffs untracked content.
func syntheticDiff(dir, relPath string) (string, error) {
	content, err := os.ReadFile(filepath.Join(dir, relPath))
	if err != nil {
		return "", err
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain("", string(content), false)

	var body strings.Builder
	lineNum := 1
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffInsert {
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			body.WriteString("+")
			body.WriteString(line)
			body.WriteByte('\n')
			lineNum++
		}
	}

	header := fmt.Sprintf("diff --git a/%s b/%s\nnew file mode 100644\n--- /dev/null\n+++ b/%s\n@@ -0,0 +1,%d @@\n",
		relPath, relPath, relPath, lineNum-1)
	return header + body.String(), nil
}

func splitNonEmptyLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// runGitClean runs a git subcommand in dir and applies the spec's
// clean-signal heuristic: a non-zero exit with empty stderr means "no
// changes" for some git plumbing commands (e.g. `diff` against an
// unborn ref), not a real failure, so it is swallowed rather than
// surfaced as an error.
func runGitClean(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if stderr.Len() == 0 {
			return stdout.String(), nil
		}
		return "", errGitFailed(fmt.Errorf("%s", stderr.String()), strings.Join(args, " "))
	}
	return stdout.String(), nil
}
