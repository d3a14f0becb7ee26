// Package environment performs the host's one-shot startup validation
// of configured environments and handles the "create environment" RPC.
package environment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cklxx/slopcoordinator/internal/shared/config"
	slopErrors "github.com/cklxx/slopcoordinator/internal/shared/errors"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
	"github.com/cklxx/slopcoordinator/internal/workspace"
)

// Bootstrapper validates and creates environments against a loaded
// EnvironmentConfig.
type Bootstrapper struct {
	cfg    *config.EnvironmentConfig
	logger *utils.ComponentLogger
}

// New returns a Bootstrapper over cfg.
func New(cfg *config.EnvironmentConfig) *Bootstrapper {
	return &Bootstrapper{cfg: cfg, logger: utils.NewComponentLogger("environment.bootstrap")}
}

// Validate runs the host-startup sequence: confirm the worktrees parent
// directory exists, then confirm every configured environment is a
// valid checked-out repository whose branch listing succeeds.
func (b *Bootstrapper) Validate(ctx context.Context) error {
	if err := b.cfg.ValidateWorktreesDirectory(); err != nil {
		return err
	}
	for _, env := range b.cfg.Environments {
		mgr := workspace.NewManager(env.Name, env.Directory, b.cfg.WorktreesDirectory)
		if err := mgr.Validate(ctx); err != nil {
			return err
		}
		if _, err := mgr.ListBranches(ctx); err != nil {
			return err
		}
		b.logger.Info("validated environment %s at %s", env.Name, env.Directory)
	}
	return nil
}

// Create initializes a new empty git repository at a safe child path
// under the worktrees directory and registers it as environment name.
// Refuses if name is already registered or its target directory exists.
func (b *Bootstrapper) Create(ctx context.Context, name string) (config.Environment, error) {
	if _, ok := b.cfg.Find(name); ok {
		return config.Environment{}, slopErrors.Conflict(fmt.Sprintf("environment %q already exists", name))
	}

	dir := filepath.Join(b.cfg.WorktreesDirectory, ".slopcoord-repos", sanitizeEnvName(name))
	if _, err := os.Stat(dir); err == nil {
		return config.Environment{}, slopErrors.Conflict(fmt.Sprintf("target directory already exists: %s", dir))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return config.Environment{}, slopErrors.Internal(err, "create environment directory")
	}

	cmd := exec.CommandContext(ctx, "git", "init")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return config.Environment{}, slopErrors.Internal(fmt.Errorf("%s: %w", string(out), err), "git init failed")
	}

	env := config.Environment{Name: name, Directory: dir}
	b.cfg.Environments = append(b.cfg.Environments, env)
	return env, nil
}

func sanitizeEnvName(name string) string {
	var out []byte
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_' {
			out = append(out, ch)
		} else {
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "env"
	}
	return string(out)
}
