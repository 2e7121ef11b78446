package recorder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// TrackStream sinks RTP packets of one incoming media track.
type TrackStream interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

// newTrackStream picks a media container by mime: Opus lands into
// Ogg, VP8 into IVF. The IVF writer has no VP9 frame reassembly, so
// VP9 tracks are not captured.
func newTrackStream(dir string, name string, mime string) (TrackStream, error) {
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		return oggwriter.New(filepath.Join(dir, name+".ogg"), 48000, 2)
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		return ivfwriter.New(filepath.Join(dir, name+".ivf"), ivfwriter.WithCodec(webrtc.MimeTypeVP8))
	}
	return nil, fmt.Errorf("unsupported media %v", mime)
}
