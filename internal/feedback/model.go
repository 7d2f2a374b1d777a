package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/calendar"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote"
)

// Grade is the satisfaction level a visitor taps.
type Grade string

const (
	GradeVerySatisfied Grade = "muito_satisfeito"
	GradeSatisfied     Grade = "satisfeito"
	GradeUnsatisfied   Grade = "insatisfeito"
)

// ErrInvalidGrade indicates that a grade is not one of the three kiosk buttons.
var ErrInvalidGrade = errors.New("feedback: invalid grade")

// Grades lists every grade in display order.
func Grades() []Grade {
	return []Grade{GradeVerySatisfied, GradeSatisfied, GradeUnsatisfied}
}

// ParseGrade validates raw input and returns a Grade.
func ParseGrade(rawInput string) (Grade, error) {
	grade := Grade(strings.ToLower(strings.TrimSpace(rawInput)))
	if !grade.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidGrade, rawInput)
	}
	return grade, nil
}

func (g Grade) Valid() bool {
	switch g {
	case GradeVerySatisfied, GradeSatisfied, GradeUnsatisfied:
		return true
	default:
		return false
	}
}

func (g Grade) String() string {
	return string(g)
}

// Event is one tap. Date, Time and Weekday are derived from CreatedAt exactly once,
// when the event is built, and travel with it from then on.
type Event struct {
	ID        int64     `json:"id"`
	Grade     Grade     `json:"grau_satisfacao"`
	CreatedAt time.Time `json:"created_at"`
	Date      string    `json:"data"`
	Time      string    `json:"hora"`
	Weekday   string    `json:"dia_semana"`
}

// NewEvent builds an event whose display fields reflect createdAt's wall clock in loc.
func NewEvent(id int64, grade Grade, createdAt time.Time, loc *time.Location) Event {
	if loc == nil {
		loc = time.Local
	}
	local := createdAt.In(loc)
	return Event{
		ID:        id,
		Grade:     grade,
		CreatedAt: createdAt,
		Date:      calendar.FormatDate(local),
		Time:      calendar.FormatTime(local),
		Weekday:   calendar.WeekdayPT(local),
	}
}

// Row renders the event in the remote table shape.
func (e Event) Row() remote.Row {
	timestamp := calendar.FormatISO(e.CreatedAt)
	return remote.Row{
		ID:              e.ID,
		Grade:           e.Grade.String(),
		Date:            e.Date,
		Time:            e.Time,
		Weekday:         e.Weekday,
		CreatedAt:       timestamp,
		ClientTimestamp: timestamp,
	}
}

// QueuedEvent is a tap waiting to be sent. ID is the identifier minted at the original
// tap; entries written before it existed carry zero and get a fresh id on replay.
type QueuedEvent struct {
	Grade    Grade  `json:"grau_satisfacao"`
	QueuedAt string `json:"queuedAt"`
	ID       int64  `json:"id,omitempty"`
}
