package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is one behavioral record of a tracked user inside a project.
type Event struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProjectID  uuid.UUID `db:"project_id" json:"project_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	EventName  string    `db:"event_name" json:"event_name"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	Properties Value     `db:"properties" json:"properties"`
	SessionID  *string   `db:"session_id" json:"session_id,omitempty"`
}

const (
	EventNamePageView        = "page_view"
	EventNameSignupStarted   = "signup_started"
	EventNameSignupCompleted = "signup_completed"
	EventNameClick           = "click"
)

// PropertyPath is the properties key holding the page path of a page_view.
const PropertyPath = "path"

func NewEvent(
	projectID uuid.UUID,
	userID, eventName string,
	occurredAt time.Time,
	properties map[string]any) *Event {

	return &Event{
		ID:         uuid.New(),
		ProjectID:  projectID,
		UserID:     userID,
		EventName:  eventName,
		OccurredAt: occurredAt.UTC(),
		Properties: FromAny(properties),
	}
}

// InSession attaches the event to a session and returns it for chaining.
func (e *Event) InSession(sessionID string) *Event {
	e.SessionID = &sessionID
	return e
}

// Session returns the session id and whether the event carries one.
// An empty id counts as absent.
func (e *Event) Session() (string, bool) {
	if e.SessionID == nil || *e.SessionID == "" {
		return "", false
	}
	return *e.SessionID, true
}

// Path extracts properties.path as text.
func (e *Event) Path() (string, bool) {
	return e.Properties.TextField(PropertyPath)
}

func (e *Event) IsPageView() bool {
	return e.EventName == EventNamePageView
}

func (e *Event) Validate() error {
	if e.ProjectID == uuid.Nil {
		return ErrInvalidProjectID
	}
	if e.EventName == "" {
		return ErrInvalidEventName
	}
	if e.UserID == "" {
		return ErrInvalidUserID
	}
	if e.OccurredAt.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
