// Package session holds the in-memory state of running sessions and persists
// a full snapshot to durable storage on every mutation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/state"
	"github.com/ShayCichocki/conduct/pkg/models"
)

var (
	// ErrUnknownSession is returned when mutating a session that was never opened.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionExists is returned by Create when the id is already in use.
	ErrSessionExists = errors.New("session already exists")
)

// Store owns every open session. Each session has its own lock; mutations
// of different sessions never contend.
type Store struct {
	backend state.Store

	mu       sync.Mutex
	sessions map[string]*models.Session
	locks    map[string]*sync.Mutex
	// detached sessions could not be read from storage; their snapshot is
	// never overwritten until they are retired and reopened.
	detached map[string]bool

	logger         *zap.Logger
	now            func() time.Time
	onPersistError func(id string, err error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersistErrorHook is called whenever a snapshot cannot be saved or loaded.
func WithPersistErrorHook(fn func(id string, err error)) Option {
	return func(s *Store) { s.onPersistError = fn }
}

// New creates a store over backend. A nil backend keeps sessions in memory only.
func New(backend state.Store, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		sessions: make(map[string]*models.Session),
		locks:    make(map[string]*sync.Mutex),
		detached: make(map[string]bool),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the session for id, restoring it from storage when it is not
// already in memory and creating an empty one when storage has none.
// A storage failure is reported as a warning and yields an empty session
// that lives in memory only, so the unreadable snapshot is left intact.
func (s *Store) Open(ctx context.Context, id string) (*models.Session, error) {
	if err := state.ValidateID(id); err != nil {
		return nil, err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if sess := s.current(id); sess != nil {
		return sess.Clone(), nil
	}

	sess, err := s.restore(ctx, id)
	if err != nil {
		s.persistFailed(id, "restore", err)
		sess = models.NewSession(id, s.now())
		s.mu.Lock()
		s.sessions[id] = sess
		s.detached[id] = true
		s.mu.Unlock()
		return sess.Clone(), nil
	}

	created := sess == nil
	if created {
		sess = models.NewSession(id, s.now())
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	if created {
		s.persist(ctx, sess)
		s.logger.Debug("session created", zap.String("session", id))
	} else {
		s.logger.Info("session restored",
			zap.String("session", id),
			zap.Int("subtasks", len(sess.Subtasks)),
			zap.Int("findings", len(sess.Findings)))
	}
	return sess.Clone(), nil
}

// Create starts a new empty session and fails if id is already known.
func (s *Store) Create(ctx context.Context, id string) (*models.Session, error) {
	if err := state.ValidateID(id); err != nil {
		return nil, err
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if s.current(id) != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	existing, err := s.restore(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("check existing session %s: %w", id, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	sess := models.NewSession(id, s.now())
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.persist(ctx, sess)
	return sess.Clone(), nil
}

// Mutate applies fn to a copy of the session under its lock. When fn
// succeeds the copy replaces the session and a snapshot is persisted before
// Mutate returns. When fn fails the session is left unchanged.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*models.Session) error) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	cur := s.current(id)
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = s.now()

	s.mu.Lock()
	s.sessions[id] = next
	s.mu.Unlock()

	s.persist(ctx, next)
	return nil
}

// Get returns a deep copy of the session.
func (s *Store) Get(id string) (*models.Session, bool) {
	sess := s.current(id)
	if sess == nil {
		return nil, false
	}
	return sess.Clone(), true
}

// Summary returns the condensed summary of a session, or "" if unknown.
func (s *Store) Summary(id string) string {
	sess := s.current(id)
	if sess == nil {
		return ""
	}
	return sess.Summary()
}

// Retire drops a session from memory. Its persisted snapshot is kept.
// The per-session lock stays registered so a Mutate racing with Retire and a
// later Open still serialize on the same mutex.
func (s *Store) Retire(id string) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.detached, id)
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) current(id string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *Store) restore(ctx context.Context, id string) (*models.Session, error) {
	if s.backend == nil {
		return nil, nil
	}
	blob, err := s.backend.Load(ctx, id)
	if err != nil || blob == nil {
		return nil, err
	}
	return Decode(blob)
}

func (s *Store) persist(ctx context.Context, sess *models.Session) {
	if s.backend == nil {
		return
	}
	s.mu.Lock()
	detached := s.detached[sess.ID]
	s.mu.Unlock()
	if detached {
		s.logger.Debug("session snapshot not saved, storage was unreadable at open",
			zap.String("session", sess.ID))
		return
	}
	blob, err := Encode(sess)
	if err == nil {
		err = s.backend.Save(ctx, sess.ID, blob)
	}
	if err != nil {
		s.persistFailed(sess.ID, "save", err)
	}
}

func (s *Store) persistFailed(id, op string, err error) {
	s.logger.Warn("session persistence failed, continuing in memory",
		zap.String("session", id),
		zap.String("op", op),
		zap.Error(err))
	if s.onPersistError != nil {
		s.onPersistError(id, err)
	}
}

// Encode serializes a session snapshot.
func Encode(sess *models.Session) ([]byte, error) {
	blob, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return blob, nil
}

// Decode restores a session snapshot, filling any missing collections.
func Decode(blob []byte) (*models.Session, error) {
	var sess models.Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Messages == nil {
		sess.Messages = []models.Message{}
	}
	if sess.Subtasks == nil {
		sess.Subtasks = []models.Subtask{}
	}
	if sess.WorkerResults == nil {
		sess.WorkerResults = map[string]models.WorkerResult{}
	}
	if sess.Findings == nil {
		sess.Findings = []models.Finding{}
	}
	if sess.Knowledge == nil {
		sess.Knowledge = []string{}
	}
	if sess.Artifacts == nil {
		sess.Artifacts = []models.Artifact{}
	}
	if sess.Context == nil {
		sess.Context = map[string]string{}
	}
	return &sess, nil
}
