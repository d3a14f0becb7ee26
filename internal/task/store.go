package task

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	slopErrors "github.com/cklxx/slopcoordinator/internal/shared/errors"
	"github.com/cklxx/slopcoordinator/internal/shared/utils"
)

const taskFileName = "tasks.yaml"

// taskFile is the on-disk shape of one environment's tasks.yaml:
// a single top-level object with a "tasks" list.
type taskFile struct {
	Tasks []*Task `yaml:"tasks"`
}

// Store owns every Task record in memory, indexed by id, and persists
// per-environment to tasks.yaml. Exactly one Store exists per host
// process; the coordinator never holds one, only transient RPC copies.
type Store struct {
	mu         sync.RWMutex
	logger     *utils.ComponentLogger
	envDirs    map[string]string
	tasks      map[uuid.UUID]*Task
	interrupts map[uuid.UUID]chan struct{}
}

// NewStore returns an empty store. Call LoadEnvironment for each
// configured environment before serving requests.
func NewStore(logger *utils.ComponentLogger) *Store {
	if logger == nil {
		logger = utils.NewComponentLogger("task.store")
	}
	return &Store{
		logger:     logger,
		envDirs:    map[string]string{},
		tasks:      map[uuid.UUID]*Task{},
		interrupts: map[uuid.UUID]chan struct{}{},
	}
}

// LoadEnvironment registers environment name at dir and runs the
// startup sequence: load tasks.yaml (missing/empty = empty list), prune
// tasks whose worktree no longer exists, and recover any task left
// `running` by a crashed host. The file is rewritten only if pruning or
// recovery actually mutated something.
func (s *Store) LoadEnvironment(name, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.envDirs[name] = dir
	loaded, err := readTaskFile(dir)
	if err != nil {
		return slopErrInternal(err, fmt.Sprintf("load tasks.yaml for %s", name))
	}

	mutated := false
	kept := loaded[:0]
	for _, t := range loaded {
		if _, err := os.Stat(t.WorktreePath); err != nil {
			s.logger.Warn("pruning task %s: worktree missing at %s", t.ID, t.WorktreePath)
			mutated = true
			continue
		}
		if t.Status == StatusRunning {
			s.logger.Warn("recovering crashed run for task %s", t.ID)
			t.CompleteRun(false)
			mutated = true
		}
		kept = append(kept, t)
		s.tasks[t.ID] = t
	}

	if mutated {
		return s.persistLocked(name)
	}
	return nil
}

// LoadAll is a convenience wrapper over LoadEnvironment for a
// name->directory map, typically the parsed EnvironmentConfig.
func (s *Store) LoadAll(envs map[string]string) error {
	for name, dir := range envs {
		if err := s.LoadEnvironment(name, dir); err != nil {
			return err
		}
	}
	return nil
}

// Insert adds a brand-new task, refusing if its id already exists.
func (s *Store) Insert(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return slopErrInternal(nil, fmt.Sprintf("task %s already exists", t.ID))
	}
	s.tasks[t.ID] = t
	return s.persistLocked(t.Environment)
}

// Get returns the task by id.
func (s *Store) Get(id uuid.UUID) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// List snapshots every task whose worktree currently exists on disk,
// evicting (and persisting the removal of) any that don't. Per the
// spec's open question on list_tasks' race, the cleanup and the
// snapshot happen under a single write lock rather than a read lock
// followed by a separate write-lock cleanup pass.
func (s *Store) List() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneAndSnapshotLocked("")
}

// ListByEnvironment is List scoped to one environment.
func (s *Store) ListByEnvironment(env string) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneAndSnapshotLocked(env)
}

func (s *Store) pruneAndSnapshotLocked(envFilter string) []*Task {
	dirty := map[string]bool{}
	var out []*Task
	for id, t := range s.tasks {
		if envFilter != "" && t.Environment != envFilter {
			continue
		}
		if _, err := os.Stat(t.WorktreePath); err != nil {
			delete(s.tasks, id)
			dirty[t.Environment] = true
			continue
		}
		out = append(out, t)
	}
	for env := range dirty {
		_ = s.persistLocked(env)
	}
	return out
}

// StartRun transitions task id into running, refusing with a NotFound
// error for an unknown id, a Gone error if the worktree is missing, and
// a Conflict error if a run is already open (at-most-one-run enforcement).
func (s *Store) StartRun(id uuid.UUID, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return slopErrNotFound(id)
	}
	if _, err := os.Stat(t.WorktreePath); err != nil {
		return slopErrors.Gone(fmt.Sprintf("task %s worktree no longer exists", id))
	}
	if !t.CanRun() {
		return slopErrors.Conflict(fmt.Sprintf("task %s is not ready to run (status=%s)", id, t.Status))
	}
	t.StartRun(prompt)
	if err := s.persistLocked(t.Environment); err != nil {
		return err
	}
	s.interrupts[id] = make(chan struct{})
	return nil
}

// CompleteRun closes the task's current run and persists.
func (s *Store) CompleteRun(id uuid.UUID, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return slopErrNotFound(id)
	}
	t.CompleteRun(success)
	delete(s.interrupts, id)
	return s.persistLocked(t.Environment)
}

// InterruptRun force-closes a running task's open run as a failure.
// Idempotent: calling it when the task is not running returns a
// Conflict error and changes nothing.
func (s *Store) InterruptRun(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return slopErrNotFound(id)
	}
	if !t.IsRunning() {
		return slopErrors.Conflict(fmt.Sprintf("task %s is not running", id))
	}
	t.CompleteRun(false)
	delete(s.interrupts, id)
	return s.persistLocked(t.Environment)
}

// SetSessionID records the adapter-issued session id against a task.
func (s *Store) SetSessionID(id uuid.UUID, sid uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return slopErrNotFound(id)
	}
	t.SetSessionID(sid)
	return s.persistLocked(t.Environment)
}

// CleanupStale drops every task across every environment whose
// worktree no longer exists, persisting only the environments that
// actually changed. Intended to be called both at startup (implicitly,
// via LoadEnvironment) and from a periodic sweep.
func (s *Store) CleanupStale() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirty := map[string]bool{}
	for id, t := range s.tasks {
		if _, err := os.Stat(t.WorktreePath); err != nil {
			delete(s.tasks, id)
			dirty[t.Environment] = true
		}
	}
	for env := range dirty {
		if err := s.persistLocked(env); err != nil {
			return err
		}
	}
	return nil
}

// RegisterInterrupt returns the one-shot signalling channel for a
// running task, registered by StartRun. Callers (the supervisor run
// loop) select on this channel concurrently with the adapter's event
// stream.
func (s *Store) RegisterInterrupt(id uuid.UUID) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.interrupts[id]
	if !ok {
		ch = make(chan struct{})
		s.interrupts[id] = ch
	}
	return ch
}

// SendInterrupt fires the interrupt channel for id if one is
// registered, returning false (no-op) otherwise.
func (s *Store) SendInterrupt(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.interrupts[id]
	if !ok {
		return false
	}
	select {
	case <-ch:
		// already fired
	default:
		close(ch)
	}
	return true
}

func (s *Store) persistLocked(env string) error {
	dir, ok := s.envDirs[env]
	if !ok {
		return nil
	}
	var file taskFile
	for _, t := range s.tasks {
		if t.Environment == env {
			file.Tasks = append(file.Tasks, t)
		}
	}
	return writeTaskFile(dir, file)
}

func readTaskFile(dir string) ([]*Task, error) {
	path := filepath.Join(dir, taskFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Tasks, nil
}

// writeTaskFile rewrites an environment's tasks.yaml. The spec notes
// that write-and-rename is recommended over the reference
// implementation's plain overwrite; we take that hardening since a
// partial write here would corrupt every task record for the
// environment, not just one.
func writeTaskFile(dir string, file taskFile) error {
	path := filepath.Join(dir, taskFileName)
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func slopErrNotFound(id uuid.UUID) error {
	return slopErrors.NotFound(fmt.Sprintf("task %s not found", id))
}

func slopErrInternal(cause error, message string) error {
	return slopErrors.Internal(cause, message)
}
