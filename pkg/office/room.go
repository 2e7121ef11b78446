package office

import (
	"sync"
	"time"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/monitoring"
	"github.com/meetgrid/meetgrid/pkg/recorder"
	"github.com/meetgrid/meetgrid/pkg/summary"
)

// Room is one live meeting: the participant presence records, the
// signal mailboxes, and the chat. All change events fan out to the
// subscribed members as pushes. Delivery across different members is
// not synchronized, and a re-join replays pending records in the
// snapshot, so consumers treat pushes as at-least-once and dedupe by
// record id.
type Room struct {
	id  string
	log *logger.Logger

	mu         sync.Mutex
	members    map[com.Uid]*Client
	users      map[com.Uid]api.Participant
	offers     []api.Signal
	answers    []api.Signal
	candidates []api.Signal
	chat       []api.ChatMessage
	closed     bool

	rec      *recorder.Recording
	recStart time.Time
	recConf  config.Recording
	metrics  *monitoring.Metrics
}

// mailboxCap caps every signal mailbox, the oldest records fall out
// first. Consumed pairs purge their records on leave anyway, the cap
// only guards against a writer with no matching reader.
const mailboxCap = 256

func NewRoom(id string, rec config.Recording, metrics *monitoring.Metrics, log *logger.Logger) *Room {
	return &Room{
		id:      id,
		log:     log.Extend(log.With().Str("r", id)),
		members: make(map[com.Uid]*Client, 4),
		users:   make(map[com.Uid]api.Participant, 4),
		recConf: rec,
		metrics: metrics,
	}
}

func (r *Room) Id() string { return r.id }

func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

func (r *Room) HasUser(id com.Uid) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[id]
	return ok
}

func (r *Room) Members() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.others(com.NilUid)
}

// Join adds a member and returns the room snapshot for it: every
// current participant plus all pending signal records addressed to
// the joiner. The other members observe a joined event.
func (r *Room) Join(c *Client, p api.Participant) api.RoomState {
	r.mu.Lock()
	r.members[c.Id()] = c
	r.users[p.Id] = p
	state := api.RoomState{
		Rid:       r.id,
		Users:     r.userList(),
		Recording: r.rec != nil && r.rec.Enabled(),
		Signals:   r.pendingFor(p.Id),
	}
	rest := r.others(c.Id())
	r.mu.Unlock()

	r.event(recorder.Event{Kind: "join", User: p.Name})
	for _, m := range rest {
		m.Notify(api.UserJoined, p)
	}
	return state
}

// Leave removes a member, purges the signal records of its pairs and
// notifies the rest. A leave of a non-member is a no-op.
func (r *Room) Leave(c *Client) {
	r.mu.Lock()
	if _, ok := r.members[c.Id()]; !ok {
		r.mu.Unlock()
		return
	}
	p := r.users[c.Id()]
	r.drop(c.Id())
	rest := r.others(com.NilUid)
	r.mu.Unlock()

	r.event(recorder.Event{Kind: "leave", User: p.Name})
	for _, m := range rest {
		m.Notify(api.UserLeft, p)
	}
}

// Evict forces one attendee out: the victim gets a close notice, the
// rest observe a regular left event. Returns the victim connection
// when it was online.
func (r *Room) Evict(id com.Uid, reason string) *Client {
	r.mu.Lock()
	victim := r.members[id]
	p, present := r.users[id]
	if !present {
		r.mu.Unlock()
		return victim
	}
	r.drop(id)
	rest := r.others(com.NilUid)
	r.mu.Unlock()

	r.event(recorder.Event{Kind: "evict", User: p.Name})
	if victim != nil {
		victim.Notify(api.Evicted, api.CloseNotice{Rid: r.id, Reason: reason})
	}
	for _, m := range rest {
		m.Notify(api.UserLeft, p)
	}
	return victim
}

// Presence updates the participant record of the sender and fans the
// change out to everyone else.
func (r *Room) Presence(c *Client, p api.Participant) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if prev, ok := r.users[p.Id]; ok {
		p.JoinedAt = prev.JoinedAt
	}
	r.users[p.Id] = p
	rest := r.others(c.Id())
	r.mu.Unlock()

	r.event(recorder.Event{Kind: "move", User: p.Name})
	for _, m := range rest {
		m.Notify(api.Presence, p)
	}
}

// Chat appends a message to the room chat and fans it out to every
// member, the sender included, so all sides render the same record.
func (r *Room) Chat(msg api.ChatMessage) {
	msg.Id = com.NewUid()
	msg.Rid = r.id
	msg.At = time.Now().Unix()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.chat = append(r.chat, msg)
	all := r.others(com.NilUid)
	r.mu.Unlock()

	r.event(recorder.Event{Kind: "chat", User: msg.Author, Data: msg.Text})
	for _, m := range all {
		m.Notify(api.Chat, msg)
	}
}

// AddSignal appends one signaling record to its mailbox and pushes it
// to the addressee right away when one is online. Records for absent
// addressees stay pending until their join snapshot consumes them.
func (r *Room) AddSignal(kind string, from com.Uid, to com.Uid, data string) bool {
	sig := api.Signal{Id: com.NewUid(), Kind: kind, From: from, To: to, Data: data, At: time.Now().Unix()}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	switch kind {
	case api.SigOffer:
		r.offers = box(r.offers, sig)
	case api.SigAnswer:
		r.answers = box(r.answers, sig)
	case api.SigCandidate:
		r.candidates = box(r.candidates, sig)
	default:
		r.mu.Unlock()
		return false
	}
	addressee := r.members[to]
	r.mu.Unlock()

	if addressee != nil {
		addressee.Notify(signalPT(kind), sig)
	}
	return true
}

// Record toggles the meeting recording. Stopping returns the minutes
// of the finished take for the summary step, starting returns nil.
func (r *Room) Record(active bool, user string) *summary.Minutes {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if r.rec == nil {
		if !r.recConf.Enabled {
			r.mu.Unlock()
			return nil
		}
		r.rec = recorder.NewRecording(recorder.Meta{Room: r.id}, r.log, r.recConf)
	}
	wasOn := r.rec.Enabled()
	var minutes *summary.Minutes
	if !active && wasOn {
		minutes = r.minutes()
	}
	all := r.others(com.NilUid)
	r.mu.Unlock()

	r.rec.Set(active, user)
	if active && !wasOn {
		r.mu.Lock()
		r.recStart = time.Now()
		r.mu.Unlock()
		r.event(recorder.Event{Kind: "record", User: user})
	}
	if active == wasOn {
		return nil
	}
	for _, m := range all {
		m.Notify(api.RecordMeet, api.Recording{Active: active, User: user})
	}
	return minutes
}

// Artifact points at the finished recording output, if any.
func (r *Room) Artifact() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return ""
	}
	return r.rec.ArtifactPath()
}

// Close ends the room for everyone. Terminal, all subsequent room
// operations turn into no-ops.
func (r *Room) Close(reason string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := r.others(com.NilUid)
	r.members = make(map[com.Uid]*Client)
	r.users = make(map[com.Uid]api.Participant)
	r.offers, r.answers, r.candidates = nil, nil, nil
	rec := r.rec
	r.mu.Unlock()

	if rec != nil && rec.Enabled() {
		if err := rec.Stop(); err != nil {
			r.log.Error().Err(err).Msg("recording stop failed")
		}
	}
	for _, m := range all {
		m.Notify(api.MeetingEnded, api.CloseNotice{Rid: r.id, Reason: reason})
	}
	r.log.Info().Msgf("Room closed: %v", reason)
}

// --- internals, the room lock must be held ---

func (r *Room) userList() []api.Participant {
	list := make([]api.Participant, 0, len(r.users))
	for _, p := range r.users {
		list = append(list, p)
	}
	return list
}

// others lists every member but the given one, NilUid lists all.
func (r *Room) others(except com.Uid) []*Client {
	list := make([]*Client, 0, len(r.members))
	for id, m := range r.members {
		if id != except {
			list = append(list, m)
		}
	}
	return list
}

// pendingFor collects the not yet consumed records addressed to the
// id, offers first so the consumer can pair candidates with them.
func (r *Room) pendingFor(id com.Uid) []api.Signal {
	var list []api.Signal
	for _, s := range r.offers {
		if s.To == id {
			list = append(list, s)
		}
	}
	for _, s := range r.answers {
		if s.To == id {
			list = append(list, s)
		}
	}
	for _, s := range r.candidates {
		if s.To == id {
			list = append(list, s)
		}
	}
	return list
}

// drop removes the member and every signal record its pairs own.
func (r *Room) drop(id com.Uid) {
	delete(r.members, id)
	delete(r.users, id)
	r.offers = purge(r.offers, id)
	r.answers = purge(r.answers, id)
	r.candidates = purge(r.candidates, id)
}

func (r *Room) minutes() *summary.Minutes {
	m := summary.Minutes{Meeting: r.id, Started: r.recStart, Ended: time.Now()}
	for _, p := range r.users {
		m.Attendees = append(m.Attendees, p.Name)
	}
	for _, line := range r.chat {
		if !line.System {
			m.Lines = append(m.Lines, summary.Line{Author: line.Author, Text: line.Text})
		}
	}
	return &m
}

// event writes a transcript line when the recording runs.
func (r *Room) event(e recorder.Event) {
	r.mu.Lock()
	rec := r.rec
	r.mu.Unlock()
	if rec != nil {
		rec.WriteEvent(e)
	}
}

func box(list []api.Signal, sig api.Signal) []api.Signal {
	if len(list) >= mailboxCap {
		list = list[1:]
	}
	return append(list, sig)
}

func purge(list []api.Signal, id com.Uid) []api.Signal {
	out := list[:0]
	for _, s := range list {
		if s.From != id && s.To != id {
			out = append(out, s)
		}
	}
	return out
}

func signalPT(kind string) api.PT {
	switch kind {
	case api.SigAnswer:
		return api.SignalAnswer
	case api.SigCandidate:
		return api.SignalCandidate
	default:
		return api.SignalOffer
	}
}
