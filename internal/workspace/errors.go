package workspace

import (
	"fmt"

	slopErrors "github.com/cklxx/slopcoordinator/internal/shared/errors"
)

// These mirror the reference implementation's EnvironmentError variants
// one-for-one, mapped onto the shared Kind taxonomy so RPC responses
// carry a consistent status-code hint regardless of which subsystem
// raised the failure.

func errRepositoryNotFound(dir string) error {
	return slopErrors.NotFound(fmt.Sprintf("repository directory does not exist: %s", dir))
}

func errInvalidGitRepository(dir string) error {
	return slopErrors.BadRequest(fmt.Sprintf("not a checked-out git repository: %s", dir))
}

func errWorktreeExists(path string) error {
	return slopErrors.Conflict(fmt.Sprintf("worktree already exists at %s", path))
}

func errBranchExists(branch string) error {
	return slopErrors.Conflict(fmt.Sprintf("branch already exists: %s", branch))
}

func errWorktreesDirInvalid(dir string) error {
	return slopErrors.BadRequest(fmt.Sprintf("worktrees directory does not exist or is not a directory: %s", dir))
}

func errNotMergeable(reason string) error {
	return slopErrors.Conflict(fmt.Sprintf("task is not mergeable: %s", reason))
}

func errMergeConflict(message string) error {
	return slopErrors.Conflict(fmt.Sprintf("merge conflict: %s", message))
}

func errGitFailed(cause error, op string) error {
	return slopErrors.Internal(cause, fmt.Sprintf("git %s failed", op))
}
