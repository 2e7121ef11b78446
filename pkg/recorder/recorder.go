package recorder

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// Recording persists one meeting: an event transcript with a meta
// descriptor and, optionally, the raw incoming media tracks.
type Recording struct {
	sync.Mutex

	enabled bool

	events *eventStream
	tracks map[string]TrackStream

	dir     string
	saveDir string
	meta    Meta
	conf    config.Recording
	log     *logger.Logger
}

// naming regexp
var (
	reDate = regexp.MustCompile(`%date:(.*?)%`)
	reUser = regexp.MustCompile(`%user%`)
	reRoom = regexp.MustCompile(`%room%`)
	reRand = regexp.MustCompile(`%rand:(\d+)%`)
)

const defaultNameTpl = "%date:20060102-150405%_%room%"

func NewRecording(meta Meta, log *logger.Logger, conf config.Recording) *Recording {
	savePath, err := filepath.Abs(conf.Folder)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	if err := os.MkdirAll(savePath, 0755); err != nil {
		log.Fatal().Err(err).Send()
	}
	return &Recording{dir: savePath, meta: meta, conf: conf, log: log, tracks: make(map[string]TrackStream)}
}

func (r *Recording) Start() {
	r.Lock()
	defer r.Unlock()
	r.start()
}

func (r *Recording) Stop() error {
	r.Lock()
	defer r.Unlock()
	return r.stop()
}

// Set toggles the recording on behalf of a user without stacking
// multiple restarts.
func (r *Recording) Set(enable bool, user string) {
	r.Lock()
	defer r.Unlock()
	if enable && !r.enabled {
		r.meta.User = user
		r.start()
		return
	}
	if !enable && r.enabled {
		if err := r.stop(); err != nil {
			r.log.Error().Err(err).Msg("failed to stop recording")
		}
	}
	r.meta.User = user
}

func (r *Recording) Enabled() bool {
	r.Lock()
	defer r.Unlock()
	return r.enabled
}

func (r *Recording) WriteEvent(e Event) {
	r.Lock()
	defer r.Unlock()
	if !r.enabled || r.events == nil {
		return
	}
	if err := r.events.Write(e); err != nil {
		r.log.Error().Err(err).Msg("transcript write failed")
	}
}

// StartTrack opens a media sink for one incoming track. All open
// sinks are closed together with the recording.
func (r *Recording) StartTrack(name string, mime string) (TrackStream, error) {
	r.Lock()
	defer r.Unlock()
	if !r.enabled {
		return nil, errors.New("the recording is not active")
	}
	if track, ok := r.tracks[name]; ok {
		return track, nil
	}
	track, err := newTrackStream(filepath.Join(r.dir, r.saveDir), name, mime)
	if err != nil {
		return nil, err
	}
	r.tracks[name] = track
	return track, nil
}

// ArtifactPath points at the recording output after Stop, either the
// zip file or the bare directory.
func (r *Recording) ArtifactPath() string {
	r.Lock()
	defer r.Unlock()
	if r.saveDir == "" {
		return ""
	}
	if r.conf.Zip {
		return filepath.Join(r.dir, r.saveDir+".zip")
	}
	return filepath.Join(r.dir, r.saveDir)
}

func (r *Recording) start() {
	r.enabled = true
	r.saveDir = parseName(r.conf.Name, r.meta.Room, r.meta.User)
	path := filepath.Join(r.dir, r.saveDir)

	r.log.Info().Msgf("recording path will be [%v]", path)

	if err := os.MkdirAll(path, 0755); err != nil {
		r.log.Fatal().Err(err).Send()
	}
	events, err := newEventStream(path)
	if err != nil {
		r.log.Fatal().Err(err).Send()
	}
	r.events = events
	r.meta.Started = time.Now()
}

func (r *Recording) stop() error {
	var result *multierror.Error
	if !r.enabled {
		return nil
	}
	r.enabled = false
	r.meta.Ended = time.Now()
	for name, track := range r.tracks {
		result = multierror.Append(result, track.Close())
		r.meta.Tracks = append(r.meta.Tracks, name)
		delete(r.tracks, name)
	}
	if r.events != nil {
		r.meta.Events = r.events.count
		result = multierror.Append(result, r.events.WriteMeta(r.meta))
		result = multierror.Append(result, r.events.Stop())
		r.events = nil
	}
	// the zip is written before return, so the caller can upload it
	if result.ErrorOrNil() == nil && r.conf.Zip && r.saveDir != "" {
		src := filepath.Join(r.dir, r.saveDir)
		dst := filepath.Join(src, "..", r.saveDir)
		if err := compress(src, dst); err != nil {
			result = multierror.Append(result, err)
		} else if err := os.RemoveAll(src); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func parseName(name, room, user string) (out string) {
	if name == "" {
		name = defaultNameTpl
	}
	if d := reDate.FindStringSubmatch(name); d != nil {
		out = reDate.ReplaceAllString(name, time.Now().Format(d[1]))
	} else {
		out = name
	}
	if rnd := reRand.FindStringSubmatch(out); rnd != nil {
		out = reRand.ReplaceAllString(out, random(rnd[1]))
	}
	out = reUser.ReplaceAllString(out, user)
	out = reRoom.ReplaceAllString(out, room)
	return
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func random(num string) string {
	n, err := strconv.Atoi(num)
	if err != nil {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Int63()%int64(len(letterBytes))]
	}
	return string(b)
}
