package session

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/recorder"
	"github.com/meetgrid/meetgrid/pkg/storage"
	"github.com/meetgrid/meetgrid/pkg/webrtc"
)

// Agent is a headless meeting participant. It connects to one office,
// joins one meeting and keeps a media link to every other member:
// the file-backed microphone and camera tracks go out, and incoming
// tracks are mirrored to disk while the meeting is being recorded.
type Agent struct {
	conf config.AgentConfig
	log  *logger.Logger

	media   *MediaSource
	storage storage.CloudStorage

	mu      sync.Mutex
	office  *Office
	session *RoomSession
	rid     string
	pos     api.Pos
	rec     *recorder.Recording

	done chan struct{}
	once sync.Once
}

const (
	officeHelloWait  = 10 * time.Second
	presenceInterval = 5 * time.Second
	// walkGrid bounds the avatar walk when the space gives no size
	walkGrid = 16
)

// NewAgent checks the media sources upfront, the office connection
// happens later in Run.
func NewAgent(conf config.AgentConfig, log *logger.Logger) (*Agent, error) {
	media, err := NewMediaSource(conf.Agent.Media.AudioFile, conf.Agent.Media.VideoFile, log)
	if err != nil {
		return nil, err
	}
	cloud, err := storage.GetCloudStorage(conf.Storage.Provider, conf.Storage.Key)
	if err != nil {
		log.Error().Err(err).Msgf("cloud storage fail, provider: %v", conf.Storage.Provider)
	}
	return &Agent{conf: conf, log: log, media: media, storage: cloud, done: make(chan struct{})}, nil
}

// Run connects and joins in the background. The agent is done when
// the meeting ends, the office connection drops, or Shutdown runs.
func (a *Agent) Run() { go a.run() }

// Done closes when the agent finished its meeting for any reason.
func (a *Agent) Done() <-chan struct{} { return a.done }

func (a *Agent) run() {
	conf := a.conf.Agent
	office, err := ConnectOffice(conf.OfficeUrl(), a.log)
	if err != nil {
		a.log.Error().Err(err).Msgf("no office at %v", conf.OfficeUrl().Host)
		a.finish()
		return
	}
	a.mu.Lock()
	a.office = office
	a.mu.Unlock()

	hello, err := office.Handshake(officeHelloWait)
	if err != nil {
		a.log.Error().Err(err).Msg("the office handshake failed")
		office.Close()
		a.finish()
		return
	}
	a.log.Info().Msgf("Session [%v], %v spaces shared", hello.Id.Short(), len(hello.Spaces))

	webConf := a.conf.Webrtc
	if len(hello.Ice) > 0 {
		// the ICE list of the office wins over the local config
		webConf.IceServers = hello.Ice
	}
	factory, err := webrtc.NewApiFactory(webConf, a.log, nil)
	if err != nil {
		a.log.Error().Err(err).Msg("webrtc api failure")
		office.Close()
		a.finish()
		return
	}

	aCodec, vCodec := a.media.Codecs()
	maker := LinkMaker(func() (Connection, error) {
		peer := webrtc.New(a.log, factory)
		if err := peer.Init(hello.Id.String(), aCodec, vCodec); err != nil {
			return nil, err
		}
		return NewPionConnection(peer), nil
	})

	session := NewRoomSession(hello.Id, office, a.media, maker, ForcedStrategy(conf.Strategy), a.log)
	session.OnNotice = func(text string) { a.log.Info().Msgf("* %v", text) }
	session.OnChat = a.onChat
	session.OnRecord = a.onRecord
	session.OnPacket = a.onPacket
	session.OnStreamChange = func(remote com.Uid, tracks []webrtc.RemoteTrack) {
		a.log.Debug().Msgf("Participant [%v] streams %v tracks", remote.Short(), len(tracks))
	}
	session.OnClosed = func(string) { a.finish() }
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	office.OnEvent(session.HandleEvent)

	state, err := office.Join(api.JoinRoomRequest{Rid: conf.Meeting, Name: conf.Name, Space: conf.Space})
	if err != nil {
		a.log.Error().Err(err).Msgf("the office refused meeting [%v]", conf.Meeting)
		office.Close()
		a.finish()
		return
	}
	a.mu.Lock()
	a.rid = state.Rid
	a.mu.Unlock()
	a.log.Info().Str("r", state.Rid).Msgf("Joined as [%v] with %v others", conf.Name, len(state.Users)-1)

	session.Start(*state)
	a.media.Start()
	go a.wander(office)

	if a.conf.Recording.Enabled && !state.Recording {
		if err := office.Record(true); err != nil {
			a.log.Warn().Err(err).Msg("the office did not start the recording")
		}
	}

	go func() {
		select {
		case <-office.Wait():
			a.log.Info().Msg("The office connection is gone")
			a.finish()
		case <-a.done:
		}
		sp, sb := factory.Stats().Sent()
		rp, rb := factory.Stats().Received()
		a.log.Info().Msgf("Media totals: %v packets / %v bytes out, %v packets / %v bytes in", sp, sb, rp, rb)
	}()
}

// Shutdown leaves the meeting and releases the media pumps. The leave
// is best effort, the office handles a plain disconnect the same way.
func (a *Agent) Shutdown(context.Context) error {
	a.mu.Lock()
	session, office := a.session, a.office
	a.mu.Unlock()
	if session != nil {
		session.Leave()
		select {
		case <-session.Done():
		case <-time.After(2 * time.Second):
		}
	}
	a.media.Stop()
	if office != nil {
		office.Close()
	}
	a.stopCapture("")
	a.finish()
	return nil
}

func (a *Agent) finish() { a.once.Do(func() { close(a.done) }) }

// wander keeps the avatar alive with a bounded random walk announced
// through the presence channel.
func (a *Agent) wander(office *Office) {
	t := time.NewTicker(presenceInterval)
	defer t.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-t.C:
			a.mu.Lock()
			a.pos.X = clamp(a.pos.X+rand.Intn(3)-1, walkGrid)
			a.pos.Y = clamp(a.pos.Y+rand.Intn(3)-1, walkGrid)
			p := api.Participant{Pos: a.pos, MicOn: a.media.micOn(), CamOn: a.media.camOn()}
			a.mu.Unlock()
			if err := office.Presence(p); err != nil {
				return
			}
		}
	}
}

func (a *Agent) onChat(msg api.ChatMessage) {
	who := msg.Author
	if who == "" {
		who = msg.From.Short()
	}
	a.log.Info().Msgf("[chat] %v: %v", who, msg.Text)
}

// onRecord follows the meeting recording state with a local track
// capture when one is configured.
func (a *Agent) onRecord(rec api.Recording) {
	if !a.conf.Recording.Media {
		return
	}
	if rec.Active {
		a.startCapture(rec.User)
		return
	}
	a.stopCapture(rec.User)
}

func (a *Agent) startCapture(user string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rec == nil {
		a.rec = recorder.NewRecording(recorder.Meta{Room: a.rid, User: user}, a.log, a.conf.Recording)
	}
	a.rec.Set(true, user)
}

// stopCapture closes the track sinks and ships the artifact, best
// effort as every upload here.
func (a *Agent) stopCapture(user string) {
	a.mu.Lock()
	rec := a.rec
	a.rec = nil
	rid := a.rid
	a.mu.Unlock()
	if rec == nil {
		return
	}
	rec.Set(false, user)
	artifact := rec.ArtifactPath()
	if artifact == "" {
		return
	}
	if err := a.storage.Save(filepath.Base(artifact), artifact); err != nil {
		a.log.Error().Err(err).Str("r", rid).Msg("capture upload failed")
	}
}

// onPacket runs on the track reader threads, so it only forwards the
// payload into an already opened sink.
func (a *Agent) onPacket(remote com.Uid, tr webrtc.RemoteTrack, pkt *rtp.Packet) {
	a.mu.Lock()
	rec := a.rec
	a.mu.Unlock()
	if rec == nil || !rec.Enabled() {
		return
	}
	sink, err := rec.StartTrack(remote.String()+"_"+tr.Kind, tr.Mime)
	if err != nil {
		return
	}
	if err := sink.WriteRTP(pkt); err != nil {
		a.log.Debug().Err(err).Msg("track write failed")
	}
}

func clamp(v int, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
