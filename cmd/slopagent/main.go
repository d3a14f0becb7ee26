// slopagent is the host CLI: it loads an environment config, validates
// every configured repository, and maintains a persistent connection
// to a coordinator, answering task RPCs against the local task store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/cklxx/slopcoordinator/internal/environment"
	"github.com/cklxx/slopcoordinator/internal/host"
	"github.com/cklxx/slopcoordinator/internal/rpc"
	"github.com/cklxx/slopcoordinator/internal/shared/config"
	"github.com/cklxx/slopcoordinator/internal/shared/observability"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/supervisor/adapter/claude"
	"github.com/cklxx/slopcoordinator/internal/supervisor/adapter/codex"
	"github.com/cklxx/slopcoordinator/internal/supervisor/adapter/cursor"
	"github.com/cklxx/slopcoordinator/internal/supervisor/adapter/gemini"
	"github.com/cklxx/slopcoordinator/internal/supervisor/adapter/opencode"
	"github.com/cklxx/slopcoordinator/internal/task"
	"github.com/cklxx/slopcoordinator/internal/workspace"
)

const defaultBranchModel = "claude-haiku-4-5"

var (
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
)

// isInteractive reports whether stdin/stdout are attached to a real
// terminal, used only to decide whether a missing password falls back
// to a prompt instead of failing outright.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// promptPassword reads the handshake password from the terminal without
// echo. A non-interactive invocation with no password configured is
// fatal: the host cannot authenticate.
func promptPassword() (string, error) {
	if !isInteractive() {
		return "", fmt.Errorf("--password is required")
	}
	fmt.Fprint(os.Stderr, "coordinator password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("--password is required")
	}
	return string(raw), nil
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		serverURL   string
		hostname    string
		password    string
		branchModel string
	)

	cmd := &cobra.Command{
		Use:   "slopagent [config.yaml]",
		Short: "Run an agent host that connects to a slopcoordinator",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := "environments.yaml"
			if len(args) == 1 {
				configPath = args[0]
			}

			viper.SetEnvPrefix("SLOPCOORD")
			viper.AutomaticEnv()
			_ = viper.BindPFlag("server", cmd.Flags().Lookup("server"))
			_ = viper.BindPFlag("password", cmd.Flags().Lookup("password"))

			if serverURL == "" {
				serverURL = viper.GetString("server")
			}
			if password == "" {
				password = viper.GetString("password")
			}

			if serverURL == "" {
				return fmt.Errorf("--server is required")
			}
			if password == "" {
				p, err := promptPassword()
				if err != nil {
					return err
				}
				password = p
			}
			if hostname == "" {
				h, err := os.Hostname()
				if err != nil {
					h = "slopagent"
				}
				hostname = h
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load %s: %w", configPath, err)
			}

			return run(cfg, serverURL, password, hostname, branchModel)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "coordinator websocket URL")
	cmd.Flags().StringVar(&hostname, "name", "", "hostname this agent registers as (default: OS hostname)")
	cmd.Flags().StringVar(&password, "password", "", "shared handshake password")
	cmd.Flags().StringVar(&branchModel, "branch-model", defaultBranchModel, "model used to derive task branch names")
	return cmd
}

func run(cfg *config.EnvironmentConfig, serverURL, password, hostname, branchModel string) error {
	logger := utils.NewComponentLogger("slopagent")

	shutdownTracing, err := observability.Init("slopagent")
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	bootstrapper := environment.New(cfg)
	if err := bootstrapper.Validate(context.Background()); err != nil {
		return err
	}

	store := task.NewStore(nil)
	managers := map[string]*workspace.Manager{}
	stateDirs := map[string]string{}
	for _, env := range cfg.Environments {
		managers[env.Name] = workspace.NewManager(env.Name, env.Directory, cfg.WorktreesDirectory)
		stateDir := cfg.StateDir(env.Name)
		if err := os.MkdirAll(stateDir, 0o755); err != nil {
			return fmt.Errorf("create state directory for %s: %w", env.Name, err)
		}
		stateDirs[env.Name] = stateDir
	}
	if err := store.LoadAll(stateDirs); err != nil {
		return err
	}

	adapters := supervisor.NewRegistry(
		codex.New(),
		claude.New(),
		cursor.New(),
		gemini.New(),
		opencode.New(),
	)

	// The LLM-backed topic picker is an external collaborator; without
	// one configured, branch naming always takes the deterministic
	// fallback path, and branchModel is just recorded for operators.
	logger.Info("branch naming model %s (deterministic fallback picker in use)", branchModel)
	picker := workspace.NewNoopTopicPicker()
	svc := host.NewService(cfg, store, adapters, managers, picker)

	wsURL, err := rpc.ParseServerURL(serverURL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println(green(fmt.Sprintf("slopagent %q connecting to %s", hostname, wsURL)))
	runner := host.NewRunner(wsURL, password, hostname, nil, svc)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("runner exited: %v", err)
		return err
	}
	fmt.Println(yellow("slopagent shutting down"))
	return nil
}
