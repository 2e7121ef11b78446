// Package summary turns meeting transcripts into short readable
// digests which are posted back into the room chat.
package summary

import (
	"context"
	"time"

	"github.com/meetgrid/meetgrid/pkg/config"
)

// Minutes is the raw material of a meeting summary.
type Minutes struct {
	Meeting   string    `json:"meeting"`
	Attendees []string  `json:"attendees"`
	Started   time.Time `json:"started"`
	Ended     time.Time `json:"ended"`
	Lines     []Line    `json:"lines"`
}

// Line is one utterance of the transcript.
type Line struct {
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

// Provider generates a summary of the given minutes.
type Provider interface {
	Summarize(ctx context.Context, m Minutes) (string, error)
}

// New picks a provider for the config: a remote HTTP endpoint when
// one is set, the built-in extractive digest otherwise. Remote
// failures degrade to the built-in digest instead of losing the
// meeting notes.
func New(conf config.Summary) Provider {
	if conf.Url == "" {
		return Extractive{}
	}
	timeout := time.Duration(conf.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	remote, err := NewHttpProvider(conf.Url, timeout)
	if err != nil {
		return Extractive{}
	}
	return Fallback{Primary: remote, Backup: Extractive{}}
}

// Fallback tries the primary provider and falls back on any error.
type Fallback struct {
	Primary Provider
	Backup  Provider
}

func (f Fallback) Summarize(ctx context.Context, m Minutes) (string, error) {
	out, err := f.Primary.Summarize(ctx, m)
	if err == nil {
		return out, nil
	}
	return f.Backup.Summarize(ctx, m)
}
