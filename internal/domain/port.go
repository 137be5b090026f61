package domain

import (
	"context"
	"time"
)

// TextSourcePort fetches the text of a surah in a given script
type TextSourcePort interface {
	// FetchSurah returns ayahs ordered by number, starting at 1, without gaps
	FetchSurah(ctx context.Context, script ScriptID, surah int) (*RawSurah, error)
}

// HighlightStorePort persists highlights
type HighlightStorePort interface {
	// CreateHighlight stores a new highlight and returns its ID
	CreateHighlight(ctx context.Context, h NewHighlight) (string, error)

	// DeleteHighlight removes a highlight by ID
	DeleteHighlight(ctx context.Context, id string) error

	// ListHighlights returns every highlight of a student
	ListHighlights(ctx context.Context, studentID string) ([]Highlight, error)

	// CompleteHighlights marks highlights as completed at the given time
	CompleteHighlights(ctx context.Context, ids []string, at time.Time) error
}

// AnnotationPort reports which words carry ink strokes and which highlights carry notes
type AnnotationPort interface {
	// Marks returns ink and note markers for a student's page under a script
	Marks(ctx context.Context, studentID string, page int, script ScriptID) (AnnotationMarks, error)
}

// FSMPort defines the interface for per-user session storage
type FSMPort interface {
	// SetState sets the current state for a user
	SetState(ctx context.Context, userID string, state State) error

	// GetState gets the current state for a user
	GetState(ctx context.Context, userID string) (State, error)

	// DeleteState deletes the state for a user
	DeleteState(ctx context.Context, userID string) error

	// SetData sets temporary data for a user's current session
	SetData(ctx context.Context, userID, key, value string) error

	// GetData gets temporary data for a user's current session
	GetData(ctx context.Context, userID, key string) (string, error)

	// DeleteData deletes temporary data for a user
	DeleteData(ctx context.Context, userID, key string) error
}

// I18nPort defines the interface for internationalization
type I18nPort interface {
	// Get retrieves a translated message
	Get(lang Language, key string, args ...interface{}) string

	// GetSurahName retrieves the localized name of a Surah
	GetSurahName(lang Language, surahNumber int) string
}

// BotPort defines the interface for the bot adapter
type BotPort interface {
	// Start starts the bot
	Start(ctx context.Context) error

	// Stop stops the bot
	Stop() error
}

// State represents the FSM states
type State string

const (
	StateStart       State = "start"
	StateReading     State = "reading"
	StateSelectSurah State = "select_surah"
)

// SessionData keys
const (
	SessionKeyPage     = "page"
	SessionKeyScript   = "script"
	SessionKeyCategory = "category"
	SessionKeyStudent  = "student"
	SessionKeyLanguage = "language"
)
