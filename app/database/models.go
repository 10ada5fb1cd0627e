package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidStatus     = errors.New("invalid item status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

type ItemStatus string

const (
	StatusNew      ItemStatus = "new"
	StatusSeen     ItemStatus = "seen"
	StatusAnswered ItemStatus = "answered"
	StatusIgnored  ItemStatus = "ignored"
)

// statusTransitions lists the allowed target states per state. Every
// transition is permitted so a reviewer can re-open any item.
var statusTransitions = map[ItemStatus][]ItemStatus{
	StatusNew:      {StatusNew, StatusSeen, StatusAnswered, StatusIgnored},
	StatusSeen:     {StatusNew, StatusSeen, StatusAnswered, StatusIgnored},
	StatusAnswered: {StatusNew, StatusSeen, StatusAnswered, StatusIgnored},
	StatusIgnored:  {StatusNew, StatusSeen, StatusAnswered, StatusIgnored},
}

func ParseItemStatus(s string) (ItemStatus, error) {
	status := ItemStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statusTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (s ItemStatus) CanTransitionTo(target ItemStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusOK      RunStatus = "ok"
	RunStatusPartial RunStatus = "partial"
	RunStatusError   RunStatus = "error"
)

type UpsertResult int

const (
	UpsertInserted UpsertResult = iota
	UpsertDuplicate
)

func (r UpsertResult) String() string {
	if r == UpsertInserted {
		return "inserted"
	}
	return "duplicate"
}

type Source struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Enabled   bool      `json:"enabled"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SourceKey is the identity of a source: its name, case-insensitively.
func SourceKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type Settings struct {
	IncludeKeywords            []string  `json:"includeKeywords"`
	ExcludeKeywords            []string  `json:"excludeKeywords"`
	QuestionSignals            []string  `json:"questionSignals"`
	LanguageFilterEnabled      bool      `json:"languageFilterEnabled"`
	ScanIntervalMinutes        int       `json:"scanIntervalMinutes"`
	MaxItemsPerRun             int       `json:"maxItemsPerRun"`
	MaxItemsPerSource          int       `json:"maxItemsPerSource"`
	PoliteModeEnabled          bool      `json:"politeModeEnabled"`
	JitterSeconds              int       `json:"jitterSeconds"`
	BackoffSeconds             int       `json:"backoffSeconds"`
	NotificationScoreThreshold int       `json:"notificationScoreThreshold"`
	UpdatedAt                  time.Time `json:"updatedAt"`
}

type Item struct {
	ID              string     `json:"id"`
	ExternalKey     string     `json:"externalKey"`
	Source          string     `json:"source"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	CreatedAt       time.Time  `json:"createdAt"`
	FetchedAt       time.Time  `json:"fetchedAt"`
	Snippet         string     `json:"snippet"`
	FullText        string     `json:"fullText,omitempty"`
	Language        string     `json:"language,omitempty"`
	Score           int        `json:"score"`
	Status          ItemStatus `json:"status"`
	SeenAt          *time.Time `json:"seenAt,omitempty"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
	IgnoredAt       *time.Time `json:"ignoredAt,omitempty"`
	StatusChangedAt *time.Time `json:"statusChangedAt,omitempty"`
}

type ItemQuery struct {
	Status ItemStatus // empty means any status
	Limit  int
}

type Summary struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"itemId"`
	Summary       string    `json:"summary"`
	CoreQuestion  string    `json:"coreQuestion"`
	Risks         []string  `json:"risks"`
	TalkingPoints []string  `json:"talkingPoints"`
	Followups     []string  `json:"followups"`
	Model         string    `json:"model"`
	CreatedAt     time.Time `json:"createdAt"`
}

type RunError struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Run struct {
	ID             string     `json:"id"`
	Trigger        string     `json:"trigger"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	ProcessedCount int        `json:"processedCount"`
	DuplicateCount int        `json:"duplicateCount"`
	RejectedCount  int        `json:"rejectedCount"`
	Errors         []RunError `json:"errors"`
	RateLimited    bool       `json:"rateLimited"`
}

// NewID returns a time-ordered identifier for new records.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
