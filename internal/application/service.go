package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

// Preferences is what a user picked last time
type Preferences struct {
	Page      int
	Script    domain.ScriptID
	Category  domain.Category
	StudentID string
	Language  domain.Language
}

// MushafService hands out viewing sessions and keeps user preferences
type MushafService struct {
	deps          Deps
	prefs         domain.FSMPort
	log           *zap.Logger
	defaultScript domain.ScriptID
	defaultLang   domain.Language
	sessionOpts   []SessionOption

	mu       sync.Mutex
	sessions map[string]*Session
	// one model per student, shared by the sessions of every script
	models map[string]*highlight.Model
}

type ServiceOption func(*MushafService)

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *MushafService) { s.log = telemetry.OrNop(l) }
}

func WithDefaultScript(script domain.ScriptID) ServiceOption {
	return func(s *MushafService) {
		if script != "" {
			s.defaultScript = script
		}
	}
}

func WithDefaultLanguage(lang domain.Language) ServiceOption {
	return func(s *MushafService) {
		if lang != "" {
			s.defaultLang = lang
		}
	}
}

// WithSessionOptions applies opts to every session the service creates
func WithSessionOptions(opts ...SessionOption) ServiceOption {
	return func(s *MushafService) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

func NewMushafService(deps Deps, prefs domain.FSMPort, opts ...ServiceOption) *MushafService {
	s := &MushafService{
		deps:          deps,
		prefs:         prefs,
		log:           zap.NewNop(),
		defaultScript: domain.ScriptUthmani,
		defaultLang:   domain.LangEnglish,
		sessions:      make(map[string]*Session),
		models:        make(map[string]*highlight.Model),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(studentID string, script domain.ScriptID) string {
	return studentID + "|" + string(script)
}

// Session returns the open session of (student, script), opening one if needed
func (s *MushafService) Session(ctx context.Context, studentID string, script domain.ScriptID) (*Session, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: empty student id", domain.ErrInvalidRef)
	}
	if script == "" {
		script = s.defaultScript
	}
	k := sessionKey(studentID, script)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[k]; ok {
		return sess, nil
	}

	model, ok := s.models[studentID]
	if !ok {
		model = highlight.NewModel(s.deps.Store, studentID,
			highlight.WithLogger(s.log.With(zap.String("student", studentID))),
			highlight.WithColors(s.deps.Palette.Hex))
	}

	opts := append([]SessionOption{WithLogger(s.log)}, s.sessionOpts...)
	opts = append(opts, WithModel(model))
	sess := NewSession(studentID, script, s.deps, opts...)
	if err := sess.Open(ctx); err != nil {
		return nil, err
	}
	s.models[studentID] = model
	s.sessions[k] = sess
	return sess, nil
}

// Close forgets the session of (student, script). The student's highlight
// model goes with the last of their sessions.
func (s *MushafService) Close(studentID string, script domain.ScriptID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(studentID, script))
	for _, sess := range s.sessions {
		if sess.StudentID() == studentID {
			return
		}
	}
	delete(s.models, studentID)
}

// Start resets a user to the reading state and stores their language
func (s *MushafService) Start(ctx context.Context, userID string, lang domain.Language) error {
	if err := s.prefs.SetState(ctx, userID, domain.StateReading); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	if err := s.prefs.SetData(ctx, userID, domain.SessionKeyLanguage, string(lang)); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (s *MushafService) State(ctx context.Context, userID string) (domain.State, error) {
	return s.prefs.GetState(ctx, userID)
}

func (s *MushafService) SetState(ctx context.Context, userID string, state domain.State) error {
	return s.prefs.SetState(ctx, userID, state)
}

// Preferences reads a user's preferences, filling in defaults for anything unset
func (s *MushafService) Preferences(ctx context.Context, userID string) (Preferences, error) {
	p := Preferences{
		Page:      1,
		Script:    s.defaultScript,
		StudentID: userID,
		Language:  s.defaultLang,
	}

	read := func(key string) (string, bool, error) {
		v, err := s.prefs.GetData(ctx, userID, key)
		if errors.Is(err, domain.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("read %s: %w", key, err)
		}
		return v, v != "", nil
	}

	if v, ok, err := read(domain.SessionKeyPage); err != nil {
		return p, err
	} else if ok {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			p.Page = n
		}
	}
	if v, ok, err := read(domain.SessionKeyScript); err != nil {
		return p, err
	} else if ok {
		p.Script = domain.ScriptID(v)
	}
	if v, ok, err := read(domain.SessionKeyCategory); err != nil {
		return p, err
	} else if ok {
		p.Category = domain.Category(v)
	}
	if v, ok, err := read(domain.SessionKeyStudent); err != nil {
		return p, err
	} else if ok {
		p.StudentID = v
	}
	if v, ok, err := read(domain.SessionKeyLanguage); err != nil {
		return p, err
	} else if ok {
		p.Language = domain.Language(v)
	}
	return p, nil
}

// Language returns the user's language, or the default when unknown
func (s *MushafService) Language(ctx context.Context, userID string) domain.Language {
	p, err := s.Preferences(ctx, userID)
	if err != nil {
		s.log.Warn("read preferences", zap.String("user", userID), zap.Error(err))
	}
	return p.Language
}

func (s *MushafService) SetPage(ctx context.Context, userID string, page int) error {
	if _, ok := s.deps.Index.Descriptor(page); !ok {
		return fmt.Errorf("%w: page %d", domain.ErrInvalidRef, page)
	}
	return s.set(ctx, userID, domain.SessionKeyPage, strconv.Itoa(page))
}

func (s *MushafService) SetScript(ctx context.Context, userID string, script domain.ScriptID) error {
	switch script {
	case domain.ScriptUthmani, domain.ScriptSimple:
	default:
		return fmt.Errorf("%w: unknown script %q", domain.ErrInvalidRef, script)
	}
	return s.set(ctx, userID, domain.SessionKeyScript, string(script))
}

func (s *MushafService) SetCategory(ctx context.Context, userID string, c domain.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCategory, c)
	}
	return s.set(ctx, userID, domain.SessionKeyCategory, string(c))
}

func (s *MushafService) SetStudent(ctx context.Context, userID, studentID string) error {
	if studentID == "" {
		return fmt.Errorf("%w: empty student id", domain.ErrInvalidRef)
	}
	return s.set(ctx, userID, domain.SessionKeyStudent, studentID)
}

func (s *MushafService) SetLanguage(ctx context.Context, userID string, lang domain.Language) error {
	switch lang {
	case domain.LangEnglish, domain.LangArabic, domain.LangRussian:
	default:
		return fmt.Errorf("unsupported language %q", lang)
	}
	return s.set(ctx, userID, domain.SessionKeyLanguage, string(lang))
}

func (s *MushafService) set(ctx context.Context, userID, key, value string) error {
	if err := s.prefs.SetData(ctx, userID, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// UserSession opens the session matching a user's preferences and moves it to their page
func (s *MushafService) UserSession(ctx context.Context, userID string) (*Session, Preferences, error) {
	p, err := s.Preferences(ctx, userID)
	if err != nil {
		return nil, p, err
	}
	sess, err := s.Session(ctx, p.StudentID, p.Script)
	if err != nil {
		return nil, p, err
	}
	if p.Category.Valid() {
		_ = sess.SetCategory(p.Category)
	}
	if _, err := sess.GoToPage(p.Page); err != nil {
		p.Page = 1
		sess.GoToPage(1)
	}
	return sess, p, nil
}
