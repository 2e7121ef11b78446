package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// MediaSource is the shared outbound stream of the local participant,
// fed to every connected link at once: an opus track read from an OGG
// file and a VP8/VP9 track read from an IVF file, both looped. With
// the microphone off the audio degrades to opus silence frames so the
// track keeps its timing, with the camera off the video samples just
// stop.
type MediaSource struct {
	log *logger.Logger

	audioPath string
	videoPath string
	vCodec    string

	mu    sync.Mutex
	sinks map[com.Uid]Connection
	mic   bool
	cam   bool

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// sampleInterval assumes one opus packet per OGG page, the layout of
// the pion reference media files.
const sampleInterval = 20 * time.Millisecond

// opusSilence is a single silent opus frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// NewMediaSource checks both media files upfront and sniffs the video
// codec from the IVF header. Empty paths are allowed: no audio file
// means permanent silence frames, no video file means a mute camera.
func NewMediaSource(audio string, video string, log *logger.Logger) (*MediaSource, error) {
	m := &MediaSource{
		log:       log,
		audioPath: audio,
		videoPath: video,
		vCodec:    "vp8",
		sinks:     make(map[com.Uid]Connection),
		mic:       true,
		cam:       true,
		done:      make(chan struct{}),
	}
	if audio != "" {
		if _, err := os.Stat(audio); err != nil {
			return nil, fmt.Errorf("audio source: %w", err)
		}
	}
	if video != "" {
		codec, err := sniffIVF(video)
		if err != nil {
			return nil, fmt.Errorf("video source: %w", err)
		}
		m.vCodec = codec
	}
	return m, nil
}

// Codecs names the codec pair the outgoing tracks carry.
func (m *MediaSource) Codecs() (audio string, video string) { return "opus", m.vCodec }

func (m *MediaSource) Start() {
	m.wg.Add(2)
	go m.pumpAudio()
	go m.pumpVideo()
}

func (m *MediaSource) Stop() {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
}

// Attach subscribes one link to the sample flow.
func (m *MediaSource) Attach(id com.Uid, conn Connection) {
	m.mu.Lock()
	m.sinks[id] = conn
	m.mu.Unlock()
}

func (m *MediaSource) Detach(id com.Uid) {
	m.mu.Lock()
	delete(m.sinks, id)
	m.mu.Unlock()
}

func (m *MediaSource) SetMic(on bool) { m.mu.Lock(); m.mic = on; m.mu.Unlock() }
func (m *MediaSource) SetCam(on bool) { m.mu.Lock(); m.cam = on; m.mu.Unlock() }

func (m *MediaSource) micOn() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.mic }
func (m *MediaSource) camOn() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.cam }

// pumpAudio emits one page every tick, silence when the mic is off
// or no file was given. The file loops forever.
func (m *MediaSource) pumpAudio() {
	defer m.wg.Done()

	var file *os.File
	var ogg *oggreader.OggReader
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()
	reopen := func() bool {
		if file != nil {
			_ = file.Close()
		}
		var err error
		if file, err = os.Open(m.audioPath); err != nil {
			m.log.Error().Err(err).Msg("audio source is gone")
			return false
		}
		if ogg, _, err = oggreader.NewWith(file); err != nil {
			m.log.Error().Err(err).Msg("audio source is not an OGG stream")
			return false
		}
		return true
	}

	tick := time.NewTicker(sampleInterval)
	defer tick.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-tick.C:
		}
		data := opusSilence
		if m.micOn() && m.audioPath != "" {
			if ogg == nil && !reopen() {
				return
			}
			page, _, err := ogg.ParseNextPage()
			switch {
			case err == nil && len(page) > 0:
				data = page
			case errors.Is(err, io.EOF):
				ogg = nil // loop the file on the next tick
				continue
			case err != nil:
				m.log.Error().Err(err).Msg("audio read failed")
				return
			}
		}
		m.broadcast(func(c Connection) { c.SendAudio(data, sampleInterval) })
	}
}

// pumpVideo paces the IVF frames by the header timebase. The frames
// keep being consumed with the camera off so the loop timing stays.
func (m *MediaSource) pumpVideo() {
	defer m.wg.Done()
	if m.videoPath == "" {
		return
	}

	var file *os.File
	var ivf *ivfreader.IVFReader
	frameDur := sampleInterval
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()
	reopen := func() bool {
		if file != nil {
			_ = file.Close()
		}
		var err error
		if file, err = os.Open(m.videoPath); err != nil {
			m.log.Error().Err(err).Msg("video source is gone")
			return false
		}
		var header *ivfreader.IVFFileHeader
		if ivf, header, err = ivfreader.NewWith(file); err != nil {
			m.log.Error().Err(err).Msg("video source is not an IVF stream")
			return false
		}
		frameDur = time.Millisecond *
			time.Duration(float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator)*1000)
		if frameDur <= 0 {
			frameDur = sampleInterval
		}
		return true
	}
	if !reopen() {
		return
	}

	tick := time.NewTicker(frameDur)
	defer tick.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-tick.C:
		}
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if !reopen() {
				return
			}
			continue
		}
		if err != nil {
			m.log.Error().Err(err).Msg("video read failed")
			return
		}
		if !m.camOn() {
			continue
		}
		m.broadcast(func(c Connection) { c.SendVideo(frame, frameDur) })
	}
}

func (m *MediaSource) broadcast(fn func(Connection)) {
	m.mu.Lock()
	conns := make([]Connection, 0, len(m.sinks))
	for _, c := range m.sinks {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	for _, c := range conns {
		fn(c)
	}
}

// sniffIVF maps the container FourCC onto a codec name.
func sniffIVF(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()
	_, header, err := ivfreader.NewWith(file)
	if err != nil {
		return "", err
	}
	switch strings.ToUpper(header.FourCC) {
	case "VP80":
		return "vp8", nil
	case "VP90":
		return "vp9", nil
	}
	return "", fmt.Errorf("unsupported codec %v", header.FourCC)
}
