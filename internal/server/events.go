package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a user-submitted historical event pin. Submissions are held in
// memory only; there is no durable event storage yet.
// TODO: persist submissions once the moderation flow exists.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Year        int       `json:"year,omitempty"`
	Description string    `json:"description,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// maxEvents bounds the in-memory list; the oldest submissions fall off.
const maxEvents = 1_000

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func newEventLog() *eventLog { return &eventLog{} }

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if len(l.events) > maxEvents {
		l.events = l.events[len(l.events)-maxEvents:]
	}
}

func (l *eventLog) list() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

type eventSubmission struct {
	Title       string  `json:"title"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Year        int     `json:"year"`
	Description string  `json:"description"`
}

// handleSubmitEvent serves POST /api/events.
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	var sub eventSubmission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(sub.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "title is required"})
		return
	}
	if sub.Lat < -90 || sub.Lat > 90 || sub.Lon < -180 || sub.Lon > 180 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat/lon out of range"})
		return
	}

	ev := Event{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(sub.Title),
		Lat:         sub.Lat,
		Lon:         sub.Lon,
		Year:        sub.Year,
		Description: strings.TrimSpace(sub.Description),
		SubmittedAt: time.Now().UTC(),
	}
	s.events.add(ev)
	s.log.Info().Str("id", ev.ID).Str("title", ev.Title).Msg("event submitted")

	writeJSON(w, http.StatusCreated, ev)
}

// handleListEvents serves GET /api/events.
func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"events": s.events.list(),
	})
}
