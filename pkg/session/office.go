package session

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// Office is the wire to the office server: typed calls over one
// websocket plus the push stream of room events. The push handler is
// a single callback, the session loop does the fan-out.
type Office struct {
	conn *com.Client
	log  *logger.Logger

	mu      sync.Mutex
	session api.Session
	events  func(p com.In)
	hello   chan struct{}
	once    sync.Once
}

// ErrRefused covers requests the office answered with an empty
// payload, the reason stays in the office log.
var ErrRefused = errors.New("the office refused the request")

func ConnectOffice(addr url.URL, log *logger.Logger) (*Office, error) {
	conn, err := com.NewConnector(com.WithTag("office")).NewClient(addr, log)
	if err != nil {
		return nil, err
	}
	o := &Office{conn: conn, log: log, hello: make(chan struct{})}
	conn.OnPacket(o.handle)
	conn.Listen()
	return o, nil
}

// Handshake waits for the session push the office sends to every new
// connection.
func (o *Office) Handshake(timeout time.Duration) (api.Session, error) {
	select {
	case <-o.hello:
	case <-o.conn.Wait():
		return api.Session{}, errors.New("the office connection was dropped")
	case <-time.After(timeout):
		return api.Session{}, errors.New("the office took too long to respond")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session, nil
}

// OnEvent sets the consumer of all room pushes.
func (o *Office) OnEvent(fn func(p com.In)) {
	o.mu.Lock()
	o.events = fn
	o.mu.Unlock()
}

func (o *Office) Close()              { o.conn.Close() }
func (o *Office) Wait() chan struct{} { return o.conn.Wait() }

// Latency measures one round trip through the office.
func (o *Office) Latency() (time.Duration, error) {
	start := time.Now()
	if _, err := o.conn.Call(uint8(api.CheckLatency), start.UnixMilli()); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Join enters a meeting room and returns its snapshot: the roster
// plus every pending signal record addressed to us.
func (o *Office) Join(rq api.JoinRoomRequest) (*api.RoomState, error) {
	state, err := api.UnwrapChecked[api.RoomState](o.conn.Call(uint8(api.JoinRoom), rq))
	if err != nil {
		return nil, err
	}
	if state == nil || state.Rid == "" {
		return nil, ErrRefused
	}
	return state, nil
}

func (o *Office) Leave() error { return o.conn.Send(uint8(api.LeaveRoom), nil) }

func (o *Office) Presence(p api.Participant) error {
	return o.conn.Send(uint8(api.Presence), p)
}

func (o *Office) Chat(text string) error {
	return o.conn.Send(uint8(api.Chat), api.ChatMessage{Text: text})
}

// Signal publishes one signaling record for the addressee.
func (o *Office) Signal(kind string, to com.Uid, data string) error {
	var t api.PT
	switch kind {
	case api.SigOffer:
		t = api.SignalOffer
	case api.SigAnswer:
		t = api.SignalAnswer
	case api.SigCandidate:
		t = api.SignalCandidate
	default:
		return errors.New("unknown signal kind")
	}
	return o.conn.Send(uint8(t), api.Signal{To: to, Data: data})
}

// Record asks the office to toggle the meeting recording.
func (o *Office) Record(active bool) error {
	res, err := api.UnwrapChecked[string](o.conn.Call(uint8(api.RecordMeet), api.Recording{Active: active}))
	if err != nil {
		return err
	}
	if res == nil || *res != api.OK {
		return ErrRefused
	}
	return nil
}

func (o *Office) Meetings() ([]api.Meeting, error) {
	list, err := api.UnwrapChecked[[]api.Meeting](o.conn.Call(uint8(api.MeetingList), nil))
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, ErrRefused
	}
	return *list, nil
}

// End closes the meeting for everyone, creator only.
func (o *Office) End(rid string, reason string) (*api.AdminResult, error) {
	return o.adminCall(api.MeetingEnd, api.EndMeetingRequest{Rid: rid, Reason: reason})
}

// Delete removes the meeting and its space, creator only.
func (o *Office) Delete(rid string, reason string) (*api.AdminResult, error) {
	return o.adminCall(api.MeetingDelete, api.DeleteMeetingRequest{Rid: rid, Reason: reason})
}

// EvictUser removes one attendee from the meeting, creator only.
func (o *Office) EvictUser(rid string, user com.Uid, reason string) (*api.AdminResult, error) {
	return o.adminCall(api.MeetingEvict, api.EvictUserRequest{Rid: rid, User: user, Reason: reason})
}

func (o *Office) adminCall(t api.PT, rq any) (*api.AdminResult, error) {
	res, err := api.UnwrapChecked[api.AdminResult](o.conn.Call(uint8(t), rq))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrRefused
	}
	return res, nil
}

func (o *Office) handle(p com.In) {
	if api.PT(p.T) == api.InitSession {
		if s := api.Unwrap[api.Session](p.Payload); s != nil {
			o.mu.Lock()
			o.session = *s
			o.mu.Unlock()
			o.once.Do(func() { close(o.hello) })
		}
		return
	}
	o.mu.Lock()
	fn := o.events
	o.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}
