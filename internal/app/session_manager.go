package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/lingoxa/internal/learner"
	"github.com/MrWong99/lingoxa/internal/observe"
	"github.com/MrWong99/lingoxa/internal/session"
	"github.com/MrWong99/lingoxa/internal/tutor"
	"github.com/MrWong99/lingoxa/pkg/types"
)

// ErrSessionNotFound is returned for unknown or already ended session IDs.
var ErrSessionNotFound = errors.New("app: session not found")

// SessionInfo holds metadata about a learning session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string `json:"sessionId"`

	// UserID identifies the learner.
	UserID string `json:"userId"`

	// Level is the CEFR level taken from the profile snapshot at start.
	Level types.Level `json:"level"`

	// StartedAt is when the session was started.
	StartedAt time.Time `json:"startedAt"`

	// Turns counts completed tutor replies.
	Turns int `json:"turns"`
}

// learnerSession is one live session. mu serialises every call into orch
// because session.Context is not synchronised.
type learnerSession struct {
	mu    sync.Mutex
	info  SessionInfo
	orch  *tutor.Orchestrator
	ended bool
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Router answers every session. Required.
	Router tutor.Responder

	// Learners supplies profile snapshots and receives usage records.
	// Default: an empty in-memory store.
	Learners learner.Store

	// DefaultLevel is used for learners without a stored profile.
	// Default: A2.
	DefaultLevel types.Level

	// Metrics tracks the active session gauge. Optional.
	Metrics *observe.Metrics

	// TutorOptions are applied to every session's orchestrator.
	TutorOptions []tutor.Option
}

// SessionManager owns the live learning sessions. Each session has its own
// orchestrator and conversation history; the router and providers behind
// them are shared. All exported methods are safe for concurrent use, and
// calls into one session are serialised.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*learnerSession

	router       tutor.Responder
	learners     learner.Store
	defaultLevel types.Level
	metrics      *observe.Metrics
	tutorOpts    []tutor.Option
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Router == nil {
		return nil, errors.New("app: session manager requires a router")
	}
	if cfg.Learners == nil {
		cfg.Learners = learner.NewMemStore()
	}
	if !cfg.DefaultLevel.IsValid() {
		cfg.DefaultLevel = types.LevelA2
	}
	return &SessionManager{
		sessions:     make(map[string]*learnerSession),
		router:       cfg.Router,
		learners:     cfg.Learners,
		defaultLevel: cfg.DefaultLevel,
		metrics:      cfg.Metrics,
		tutorOpts:    slices.Clone(cfg.TutorOptions),
	}, nil
}

// Start opens a session for userID. The learner profile is read once here;
// learners without a profile start at the default level.
func (sm *SessionManager) Start(ctx context.Context, userID string) (SessionInfo, error) {
	if userID == "" {
		return SessionInfo{}, errors.New("app: user id must not be empty")
	}

	profile, err := sm.learners.Profile(ctx, userID)
	switch {
	case errors.Is(err, learner.ErrNotFound):
		slog.Info("session: no learner profile, using default level", "user_id", userID, "level", sm.defaultLevel)
		profile = &types.LearnerProfile{UserID: userID, Level: sm.defaultLevel}
	case err != nil:
		return SessionInfo{}, fmt.Errorf("app: load learner profile: %w", err)
	case !profile.Level.IsValid():
		profile.Level = sm.defaultLevel
	}

	sc := session.NewContext()
	sc.SetLearnerProfile(profile)

	id := uuid.NewString()
	opts := append(slices.Clone(sm.tutorOpts), tutor.WithStageObserver(logStage))
	orch, err := tutor.New(sm.router, sc, opts...)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: create orchestrator: %w", err)
	}

	s := &learnerSession{
		info: SessionInfo{
			SessionID: id,
			UserID:    userID,
			Level:     sc.Level(),
			StartedAt: time.Now().UTC(),
		},
		orch: orch,
	}

	sm.mu.Lock()
	sm.sessions[id] = s
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(ctx, 1)
	}
	observe.Logger(observe.WithSessionID(ctx, id)).Info("session started",
		"user_id", userID,
		"level", s.info.Level,
	)
	return s.info, nil
}

// End closes a session. It waits for an in-flight call on that session to
// finish.
func (sm *SessionManager) End(ctx context.Context, id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	s.ended = true
	info := s.info
	s.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(ctx, -1)
	}
	observe.Logger(observe.WithSessionID(ctx, id)).Info("session ended",
		"user_id", info.UserID,
		"turns", info.Turns,
		"duration", time.Since(info.StartedAt).Round(time.Second),
	)
	return nil
}

// EndAll closes every live session.
func (sm *SessionManager) EndAll(ctx context.Context) {
	sm.mu.Lock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		// A concurrent End may have won the race.
		_ = sm.End(ctx, id)
	}
}

// Info returns metadata about one session.
func (sm *SessionManager) Info(id string) (SessionInfo, error) {
	s, err := sm.get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, nil
}

// Active lists the live sessions, oldest first.
func (sm *SessionManager) Active() []SessionInfo {
	sm.mu.Lock()
	live := make([]*learnerSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		live = append(live, s)
	}
	sm.mu.Unlock()

	out := make([]SessionInfo, 0, len(live))
	for _, s := range live {
		s.mu.Lock()
		out = append(out, s.info)
		s.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.SessionID, b.SessionID))
	})
	return out
}

// ProcessText answers typed learner text in session id.
func (sm *SessionManager) ProcessText(ctx context.Context, id, text string) (*types.TutorResponse, error) {
	return sm.process(ctx, id, "text", func(ctx context.Context, o *tutor.Orchestrator) (*types.TutorResponse, error) {
		return o.ProcessText(ctx, text)
	})
}

// ProcessAudio answers a spoken recording in session id.
func (sm *SessionManager) ProcessAudio(ctx context.Context, id string, recording []byte) (*types.TutorResponse, error) {
	return sm.process(ctx, id, "audio", func(ctx context.Context, o *tutor.Orchestrator) (*types.TutorResponse, error) {
		return o.ProcessAudio(ctx, recording)
	})
}

// Synthesize renders text as speech for session id. The conversation history
// is not touched. The session lock is only held to check that the session is
// open; a turn may run while the audio is rendered.
func (sm *SessionManager) Synthesize(ctx context.Context, id, text, cacheKey string) (*tutor.SynthesisResult, error) {
	s, err := sm.lock(id)
	if err != nil {
		return nil, err
	}
	orch := s.orch
	s.mu.Unlock()
	return orch.SynthesizeReply(observe.WithSessionID(ctx, id), text, cacheKey)
}

func (sm *SessionManager) process(ctx context.Context, id, modality string, fn func(context.Context, *tutor.Orchestrator) (*types.TutorResponse, error)) (*types.TutorResponse, error) {
	s, err := sm.lock(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	ctx = observe.WithSessionID(ctx, id)
	resp, err := fn(ctx, s.orch)
	if err != nil {
		return nil, err
	}
	s.info.Turns++

	rec := learner.NewUsageRecord(id, s.info.UserID, modality, resp)
	if err := sm.learners.RecordUsage(ctx, rec); err != nil {
		observe.Logger(ctx).Warn("session: usage ledger write failed", "err", err)
	}
	return resp, nil
}

// lock returns the session with its mutex held.
func (sm *SessionManager) lock(id string) (*learnerSession, error) {
	s, err := sm.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

func (sm *SessionManager) get(id string) (*learnerSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

func logStage(ctx context.Context, from, to tutor.Stage) {
	observe.Logger(ctx).Debug("tutor stage", "from", from.String(), "to", to.String())
}
