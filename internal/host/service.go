// Package host implements the agent-host side of the coordinator<->
// host RPC: it answers each Request variant against the local task
// store, supervisor registry, and workspace managers, and runs the
// persistent reconnecting connection loop that carries them.
package host

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cklxx/slopcoordinator/internal/environment"
	"github.com/cklxx/slopcoordinator/internal/rpc"
	"github.com/cklxx/slopcoordinator/internal/shared/async"
	"github.com/cklxx/slopcoordinator/internal/shared/config"
	slopErrors "github.com/cklxx/slopcoordinator/internal/shared/errors"
	"github.com/cklxx/slopcoordinator/internal/shared/observability"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
	"github.com/cklxx/slopcoordinator/internal/supervisor"
	"github.com/cklxx/slopcoordinator/internal/task"
	"github.com/cklxx/slopcoordinator/internal/workspace"
)

// Service answers every RequestKind against this host's local state: a
// task store, one workspace Manager per environment, and the
// supervisor adapter registry used to spawn or resume assistant runs.
type Service struct {
	cfg          *config.EnvironmentConfig
	store        *task.Store
	adapters     *supervisor.Registry
	managers     map[string]*workspace.Manager
	managersMu   sync.Mutex
	picker       workspace.TopicPicker
	bootstrapper *environment.Bootstrapper
	logger       *utils.ComponentLogger
}

// NewService wires a Service over an already-loaded store and a
// per-environment workspace Manager map.
func NewService(cfg *config.EnvironmentConfig, store *task.Store, adapters *supervisor.Registry, managers map[string]*workspace.Manager, picker workspace.TopicPicker) *Service {
	if picker == nil {
		picker = workspace.NewNoopTopicPicker()
	}
	return &Service{
		cfg:          cfg,
		store:        store,
		adapters:     adapters,
		managers:     managers,
		picker:       picker,
		bootstrapper: environment.New(cfg),
		logger:       utils.NewComponentLogger("host.service"),
	}
}

// Handle answers one incoming Request, returning the Response to
// envelope back or an error to map onto an Error envelope.
func (s *Service) Handle(ctx context.Context, sink supervisor.EventSink, req rpc.Request) (rpc.Response, error) {
	ctx, span := observability.StartSpan(ctx, "host.handle")
	span.SetAttributes(attribute.String("slopcoordinator.request_kind", string(req.Kind)))
	defer span.End()

	switch req.Kind {
	case rpc.RequestListEnvironments:
		return s.listEnvironments(), nil
	case rpc.RequestCreateEnvironment:
		return s.createEnvironment(ctx, req.Name)
	case rpc.RequestListBranches:
		return s.listBranches(ctx, req.Environment)
	case rpc.RequestListTasks:
		return s.listTasks(req.Environment), nil
	case rpc.RequestGetTask:
		return s.getTask(req.TaskID)
	case rpc.RequestCreateTask:
		return s.createTask(ctx, req.CreateTask)
	case rpc.RequestSendPrompt:
		return s.sendPrompt(ctx, sink, req.TaskID, req.Prompt)
	case rpc.RequestGetTaskOutput:
		return s.getTaskOutput(req.TaskID)
	case rpc.RequestGetTaskDiff:
		return s.getTaskDiff(ctx, req.TaskID)
	case rpc.RequestInterruptTask:
		return s.interruptTask(req.TaskID)
	case rpc.RequestMergeTask:
		return s.mergeTask(ctx, req.TaskID)
	case rpc.RequestGetMergeReadiness:
		return s.getMergeReadiness(ctx, req.TaskID)
	case rpc.RequestArchiveTask:
		return s.archiveTask(req.TaskID, req.Force)
	case rpc.RequestDeleteTask:
		return s.deleteTask(ctx, req.TaskID, req.Force)
	default:
		return rpc.Response{}, slopErrors.BadRequest(fmt.Sprintf("unknown request kind %q", req.Kind))
	}
}

// statusForError maps a typed error's Kind onto the HTTP-equivalent
// status code carried in an Error envelope (spec.md §4.3).
func statusForError(err error) int {
	switch slopErrors.KindOf(err) {
	case slopErrors.KindNotFound:
		return 404
	case slopErrors.KindGone:
		return 410
	case slopErrors.KindConflict:
		return 409
	case slopErrors.KindBadRequest:
		return 400
	case slopErrors.KindUnauthorized:
		return 401
	case slopErrors.KindTimeout:
		return 504
	default:
		return 500
	}
}

func (s *Service) manager(envName string) (*workspace.Manager, error) {
	s.managersMu.Lock()
	defer s.managersMu.Unlock()
	mgr, ok := s.managers[envName]
	if !ok {
		return nil, slopErrors.NotFound(fmt.Sprintf("environment %q is not configured", envName))
	}
	return mgr, nil
}

func (s *Service) listEnvironments() rpc.Response {
	infos := make([]rpc.EnvironmentInfo, 0, len(s.cfg.Environments))
	for _, e := range s.cfg.Environments {
		infos = append(infos, rpc.EnvironmentInfo{Name: e.Name, Directory: e.Directory})
	}
	return rpc.Response{Kind: rpc.ResponseEnvironments, Environments: infos}
}

func (s *Service) createEnvironment(ctx context.Context, name string) (rpc.Response, error) {
	if name == "" {
		return rpc.Response{}, slopErrors.BadRequest("environment name is required")
	}
	if _, ok := s.cfg.Find(name); ok {
		return rpc.Response{}, slopErrors.Conflict(fmt.Sprintf("environment %q already exists", name))
	}
	env, err := s.bootstrapper.Create(ctx, name)
	if err != nil {
		return rpc.Response{}, err
	}
	stateDir := s.cfg.StateDir(env.Name)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return rpc.Response{}, slopErrors.Internal(err, "create environment state directory")
	}
	if err := s.store.LoadEnvironment(env.Name, stateDir); err != nil {
		return rpc.Response{}, err
	}
	mgr := workspace.NewManager(env.Name, env.Directory, s.cfg.WorktreesDirectory)
	s.managersMu.Lock()
	s.managers[env.Name] = mgr
	s.managersMu.Unlock()
	return rpc.Response{Kind: rpc.ResponseEnvironments, Environments: []rpc.EnvironmentInfo{{Name: env.Name, Directory: env.Directory}}}, nil
}

func (s *Service) listBranches(ctx context.Context, envName string) (rpc.Response, error) {
	mgr, err := s.manager(envName)
	if err != nil {
		return rpc.Response{}, err
	}
	branches, err := mgr.ListBranches(ctx)
	if err != nil {
		return rpc.Response{}, err
	}
	return rpc.Response{Kind: rpc.ResponseBranches, Branches: branches}, nil
}

func (s *Service) listTasks(envName string) rpc.Response {
	var tasks []*task.Task
	if envName == "" {
		tasks = s.store.List()
	} else {
		tasks = s.store.ListByEnvironment(envName)
	}
	return rpc.Response{Kind: rpc.ResponseTasks, Tasks: tasks}
}

func (s *Service) getTask(id *uuid.UUID) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	return rpc.Response{Kind: rpc.ResponseTask, Task: t}, nil
}

func (s *Service) createTask(ctx context.Context, req *rpc.CreateTaskRequest) (rpc.Response, error) {
	if req == nil {
		return rpc.Response{}, slopErrors.BadRequest("request payload is required")
	}
	mgr, err := s.manager(req.Environment)
	if err != nil {
		return rpc.Response{}, err
	}
	kind := task.AgentKindClaude
	if req.Agent != nil {
		kind = *req.Agent
	}

	name := "task"
	if req.Name != nil && *req.Name != "" {
		name = *req.Name
	} else if normalized, ok := workspace.NormalizeTaskName(req.Prompt); ok {
		name = normalized
	}

	workspaceKind := task.WorkspaceKindInplace
	worktreePath := mgr.EnvDir()
	var baseBranch, mergeBranch string
	if req.UseWorktree {
		alloc, err := mgr.Allocate(ctx, s.picker, req.Prompt, "")
		if err != nil {
			return rpc.Response{}, err
		}
		workspaceKind = task.WorkspaceKindIsolated
		worktreePath = alloc.WorktreePath
		baseBranch = alloc.BaseBranch
		mergeBranch = alloc.TargetBranch
	}

	t := task.New(kind, req.Environment, name, workspaceKind, worktreePath)
	t.BaseBranch = baseBranch
	t.MergeBranch = mergeBranch
	if err := s.store.Insert(t); err != nil {
		return rpc.Response{}, err
	}
	return rpc.Response{Kind: rpc.ResponseCreatedTask, Task: t, TaskID: &t.ID, WorktreePath: worktreePath}, nil
}

func (s *Service) sendPrompt(ctx context.Context, sink supervisor.EventSink, id *uuid.UUID, prompt string) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	if !t.CanRun() {
		return rpc.Response{}, slopErrors.Conflict(fmt.Sprintf("task %s is already running", id))
	}
	if _, err := s.manager(t.Environment); err != nil {
		return rpc.Response{}, err
	}

	if err := s.store.StartRun(t.ID, prompt); err != nil {
		return rpc.Response{}, err
	}
	cfg := supervisor.DefaultAgentConfig(t.AgentKind)
	interrupt := s.store.RegisterInterrupt(t.ID)
	stateDir := s.cfg.StateDir(t.Environment)
	async.Go(s.logger, fmt.Sprintf("supervisor.run[%s]", t.ID), func() {
		if err := supervisor.Run(context.Background(), s.store, s.adapters, stateDir, t, cfg, prompt, sink, interrupt); err != nil {
			s.logger.Error("run loop for task %s exited with error: %v", t.ID, err)
		}
	})
	return rpc.Ack(), nil
}

// getTaskOutput answers spec.md §4.3's "get task output" request by
// replaying the task's append-only event log — the only history the
// host keeps, since events are never buffered across a disconnect
// (spec.md §4.3).
func (s *Service) getTaskOutput(id *uuid.UUID) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	events, err := supervisor.ReadLog(s.cfg.StateDir(t.Environment), t.ID)
	if err != nil {
		return rpc.Response{}, slopErrors.Internal(err, "read task output log")
	}
	return rpc.Response{Kind: rpc.ResponseTaskOutput, Events: events}, nil
}

func (s *Service) getTaskDiff(ctx context.Context, id *uuid.UUID) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	mgr, err := s.manager(t.Environment)
	if err != nil {
		return rpc.Response{}, err
	}
	diff, err := mgr.Diff(ctx, t.WorktreePath, t.BaseBranch)
	if err != nil {
		return rpc.Response{}, err
	}
	return rpc.Response{Kind: rpc.ResponseTaskDiff, Staged: diff.Staged, Unstaged: diff.Unstaged}, nil
}

func (s *Service) interruptTask(id *uuid.UUID) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	if _, ok := s.store.Get(*id); !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	if !s.store.SendInterrupt(*id) {
		return rpc.Response{}, slopErrors.Conflict(fmt.Sprintf("task %s has no active run", id))
	}
	return rpc.Ack(), nil
}

func (s *Service) mergeTask(ctx context.Context, id *uuid.UUID) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	mgr, err := s.manager(t.Environment)
	if err != nil {
		return rpc.Response{}, err
	}
	result, err := mgr.MergeBack(ctx, t)
	if err != nil {
		return rpc.Response{}, err
	}
	return rpc.Response{Kind: rpc.ResponseMergeResult, Status: "merged", Message: result.CommitHash}, nil
}

func (s *Service) getMergeReadiness(ctx context.Context, id *uuid.UUID) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	mgr, err := s.manager(t.Environment)
	if err != nil {
		return rpc.Response{}, err
	}
	ok2, reason := mgr.MergeReadiness(ctx, t)
	resp := rpc.Response{Kind: rpc.ResponseMergeReadiness, CanMerge: ok2}
	if reason != "" {
		resp.Reason = &reason
	}
	return resp, nil
}

func (s *Service) archiveTask(id *uuid.UUID, force bool) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	if t.IsRunning() && !force {
		return rpc.Response{}, slopErrors.Conflict(fmt.Sprintf("task %s is running; use force to archive anyway", id))
	}
	return rpc.Response{Kind: rpc.ResponseArchiveResult, Status: "archived"}, nil
}

func (s *Service) deleteTask(ctx context.Context, id *uuid.UUID, force bool) (rpc.Response, error) {
	if id == nil {
		return rpc.Response{}, slopErrors.BadRequest("task_id is required")
	}
	t, ok := s.store.Get(*id)
	if !ok {
		return rpc.Response{}, slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	if t.IsRunning() && !force {
		return rpc.Response{}, slopErrors.Conflict(fmt.Sprintf("task %s is running; use force to delete anyway", id))
	}
	if t.WorkspaceKind == task.WorkspaceKindIsolated {
		if mgr, err := s.manager(t.Environment); err == nil {
			if err := mgr.Cleanup(ctx, t.WorktreePath, t.MergeBranch, true); err != nil {
				s.logger.Warn("cleanup failed for deleted task %s: %v", t.ID, err)
			}
		}
	}
	return rpc.Response{Kind: rpc.ResponseDeleteResult, Status: "deleted"}, nil
}
