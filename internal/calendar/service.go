package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is one calendar entry.
type Event struct {
	ID          string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// Provider is the external calendar collaborator: list busy intervals and
// events within a window for a calendar id, and insert new events.
type Provider interface {
	BusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]Interval, error)
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error)
	InsertEvent(ctx context.Context, calendarID string, ev Event) (Event, error)
}

// Status is the outcome tag of an availability query.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusNoAvailability Status = "no_availability"
	StatusError          Status = "error"
)

// Availability is the result of an availability query. On StatusError the
// slot list is empty — a data error is never treated as "fully free".
type Availability struct {
	Status  Status `json:"status"`
	Date    string `json:"date"`
	Slots   []Slot `json:"availability"`
	Message string `json:"message,omitempty"`
}

// EventRequest describes an event to create.
type EventRequest struct {
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	DurationMinutes int
	Title           string
	Description     string
	Agenda          string
}

// ErrConflict is returned when the requested time collides with an existing
// event or with a duplicate identically-titled event.
type ErrConflict struct {
	Title string
	Start time.Time
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("conflict: %q at %s is not free", e.Title, e.Start.Format("2006-01-02 15:04"))
}

// Service answers availability queries and books events for one calendar.
type Service struct {
	provider   Provider
	calendarID string
	loc        *time.Location
	opts       SlotOptions
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a calendar service for the given calendar id,
// normalizing all business-hour arithmetic to loc.
func NewService(provider Provider, calendarID string, loc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:   provider,
		calendarID: calendarID,
		loc:        loc,
		logger:     logger,
		now:        time.Now,
	}
}

// Availability returns the free slots for the given date ("YYYY-MM-DD").
// An empty date defaults to one calendar day ahead of the current instant,
// in UTC, before timezone conversion.
func (s *Service) Availability(ctx context.Context, date string) Availability {
	if date == "" {
		date = s.now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	}

	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return Availability{Status: StatusError, Date: date, Message: fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", date)}
	}

	opts := s.opts.withDefaults()
	from := time.Date(day.Year(), day.Month(), day.Day(), opts.BusinessStartHour, 0, 0, 0, s.loc)
	to := time.Date(day.Year(), day.Month(), day.Day(), opts.BusinessEndHour, 0, 0, 0, s.loc)

	busy, err := s.provider.BusyIntervals(ctx, s.calendarID, from, to)
	if err != nil {
		s.logger.Error("busy interval fetch failed", "calendar", s.calendarID, "date", date, "error", err)
		return Availability{Status: StatusError, Date: date, Message: err.Error()}
	}

	slots := FreeSlots(day, busy, s.loc, s.opts)
	status := StatusSuccess
	if len(slots) == 0 {
		status = StatusNoAvailability
	}
	return Availability{Status: status, Date: date, Slots: slots}
}

// CreateEvent books an event after re-testing the requested time as a
// candidate slot against live busy data, plus an exact-title collision
// check so identically-named duplicates are rejected.
func (s *Service) CreateEvent(ctx context.Context, req EventRequest) (Event, error) {
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = DefaultSlotMinutes
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, s.loc)
	if err != nil {
		return Event{}, fmt.Errorf("calendar: invalid date/time %q %q: %w", req.Date, req.Time, err)
	}
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	busy, err := s.provider.BusyIntervals(ctx, s.calendarID, start, end)
	if err != nil {
		return Event{}, fmt.Errorf("calendar: busy check: %w", err)
	}
	if !isFree(start, end, busy) {
		return Event{}, &ErrConflict{Title: req.Title, Start: start}
	}

	events, err := s.provider.ListEvents(ctx, s.calendarID, start, end)
	if err != nil {
		return Event{}, fmt.Errorf("calendar: collision check: %w", err)
	}
	for _, ev := range events {
		if ev.Title == req.Title {
			return Event{}, &ErrConflict{Title: req.Title, Start: start}
		}
	}

	description := req.Description
	if req.Agenda != "" {
		if description != "" {
			description += "\n\n"
		}
		description += "Agenda:\n" + req.Agenda
	}

	created, err := s.provider.InsertEvent(ctx, s.calendarID, Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: description,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return Event{}, fmt.Errorf("calendar: insert event: %w", err)
	}

	s.logger.Info("event created", "calendar", s.calendarID, "title", created.Title, "start", created.Start)
	return created, nil
}

// Location returns the service timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}
