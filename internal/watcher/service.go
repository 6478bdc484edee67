// Package watcher polls a peer's task lists and reports progress changes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/homecloud/internal/remote"
	"github.com/slipstream/homecloud/internal/remote/types"
)

// EventTasksProgress is the message type broadcast after every poll with changes.
const EventTasksProgress = "tasks:progress"

// Broadcaster delivers progress events to listeners.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// StatusReporter is told whether each poll reached the remote API.
type StatusReporter interface {
	ReportRemote(err error)
}

// Config selects what the watcher polls.
type Config struct {
	PeerID     string
	Categories []types.ListType
	Limit      int
}

// ChangeKind describes how a task differs from the previous poll.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// Change is a single task difference between two polls.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	TaskID   string     `json:"taskId"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Progress int        `json:"progress"`
	State    int        `json:"state"`
	Speed    int64      `json:"speed"`

	PrevProgress int `json:"prevProgress,omitempty"`
	PrevState    int `json:"prevState,omitempty"`
}

// ProgressEvent is the payload of a tasks:progress message.
type ProgressEvent struct {
	PeerID   string       `json:"pid"`
	PolledAt time.Time    `json:"polledAt"`
	Changes  []Change     `json:"changes"`
	Tasks    []types.Task `json:"tasks"`
}

type tracked struct {
	category types.ListType
	task     types.Task
}

// Service keeps the last observed task snapshot and diffs each poll against it.
type Service struct {
	api         remote.API
	broadcaster Broadcaster
	status      StatusReporter
	cfg         Config
	logger      zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	previous map[string]tracked
	last     []types.Task
	lastPoll time.Time
}

// NewService creates a watcher. broadcaster may be nil, in which case changes
// are only logged.
func NewService(api remote.API, broadcaster Broadcaster, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = types.DefaultListLimit
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = []types.ListType{types.ListDownloading}
	}

	return &Service{
		api:         api,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.With().Str("component", "watcher").Str("pid", cfg.PeerID).Logger(),
		now:         time.Now,
	}
}

// SetStatusReporter sets where poll outcomes are reported.
func (s *Service) SetStatusReporter(r StatusReporter) {
	s.mu.Lock()
	s.status = r
	s.mu.Unlock()
}

// Poll lists every configured category and broadcasts what changed since the
// previous poll. The first successful poll reports every task as added. A
// failed listing leaves the previous snapshot untouched.
func (s *Service) Poll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]tracked)
	tasks := make([]types.Task, 0)

	for _, category := range s.cfg.Categories {
		list, err := s.api.ListTasks(ctx, s.cfg.PeerID, category, remote.WithLimit(s.cfg.Limit))
		if err != nil {
			s.report(err)
			return fmt.Errorf("list %s tasks: %w", category, err)
		}
		for _, task := range list {
			current[task.ID] = tracked{category: category, task: task}
			tasks = append(tasks, task)
		}
	}

	s.report(nil)

	changes := diff(s.previous, current)
	s.previous = current
	s.last = tasks
	s.lastPoll = s.now()

	for _, c := range changes {
		s.logger.Info().
			Str("kind", string(c.Kind)).
			Str("taskId", c.TaskID).
			Str("name", c.Name).
			Int("progress", c.Progress).
			Int("state", c.State).
			Msg("task changed")
	}

	if len(changes) == 0 || s.broadcaster == nil {
		return nil
	}

	err := s.broadcaster.Broadcast(EventTasksProgress, ProgressEvent{
		PeerID:   s.cfg.PeerID,
		PolledAt: s.lastPoll,
		Changes:  changes,
		Tasks:    tasks,
	})
	if err != nil {
		// A missed broadcast is recovered by the next poll.
		s.logger.Warn().Err(err).Msg("failed to broadcast task progress")
	}
	return nil
}

func (s *Service) report(err error) {
	if s.status != nil {
		s.status.ReportRemote(err)
	}
}

// Snapshot returns the tasks seen by the last successful poll and when it ran.
func (s *Service) Snapshot() ([]types.Task, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Task, len(s.last))
	copy(out, s.last)
	return out, s.lastPoll
}

// ErrNoPeer is returned by Validate when no peer is configured.
var ErrNoPeer = errors.New("watcher: peer id is required")

// Validate reports configuration problems before the watcher is scheduled.
func (c Config) Validate() error {
	if c.PeerID == "" {
		return ErrNoPeer
	}
	for _, category := range c.Categories {
		if !category.Valid() {
			return fmt.Errorf("watcher: invalid category %s", category)
		}
	}
	return nil
}

// diff returns changes ordered by kind then task id.
func diff(previous, current map[string]tracked) []Change {
	var changes []Change

	for id, cur := range current {
		prev, seen := previous[id]
		switch {
		case !seen:
			changes = append(changes, newChange(ChangeAdded, cur))
		case prev.task.Progress != cur.task.Progress ||
			prev.task.State != cur.task.State ||
			prev.category != cur.category:
			c := newChange(ChangeUpdated, cur)
			c.PrevProgress = prev.task.Progress
			c.PrevState = prev.task.State
			changes = append(changes, c)
		}
	}

	for id, prev := range previous {
		if _, ok := current[id]; !ok {
			changes = append(changes, newChange(ChangeRemoved, prev))
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Kind != changes[j].Kind {
			return changes[i].Kind < changes[j].Kind
		}
		return changes[i].TaskID < changes[j].TaskID
	})
	return changes
}

func newChange(kind ChangeKind, t tracked) Change {
	return Change{
		Kind:     kind,
		TaskID:   t.task.ID,
		Name:     t.task.Name,
		Category: t.category.String(),
		Progress: t.task.Progress,
		State:    t.task.State,
		Speed:    t.task.Speed,
	}
}
