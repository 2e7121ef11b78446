package recorder

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Event is a single line of the meeting transcript.
type Event struct {
	At   time.Time `json:"at"`
	Kind string    `json:"kind"`
	User string    `json:"user,omitempty"`
	Data string    `json:"data,omitempty"`
}

// Meta describes a finished recording.
type Meta struct {
	Room    string    `json:"room"`
	User    string    `json:"user"`
	Started time.Time `json:"started"`
	Ended   time.Time `json:"ended"`
	Events  int       `json:"events"`
	Tracks  []string  `json:"tracks,omitempty"`
}

const (
	eventsName = "events.jsonl"
	metaName   = "meta.json"
)

// eventStream appends transcript lines into a JSONL file, one event
// per line.
type eventStream struct {
	f     *file
	dir   string
	count int
}

func newEventStream(dir string) (*eventStream, error) {
	f, err := newFile(dir, eventsName)
	if err != nil {
		return nil, err
	}
	return &eventStream{f: f, dir: dir}, nil
}

func (s *eventStream) Write(e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	line, err := json.Marshal(&e)
	if err != nil {
		return err
	}
	if err = s.f.Write(line); err != nil {
		return err
	}
	if _, err = s.f.WriteString("\n"); err != nil {
		return err
	}
	s.count++
	return nil
}

func (s *eventStream) WriteMeta(meta Meta) error {
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, metaName), data, 0644)
}

func (s *eventStream) Stop() error {
	if err := s.f.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}
