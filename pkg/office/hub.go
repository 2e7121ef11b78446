package office

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/monitoring"
	"github.com/meetgrid/meetgrid/pkg/os"
	"github.com/meetgrid/meetgrid/pkg/service"
	"github.com/meetgrid/meetgrid/pkg/storage"
	"github.com/meetgrid/meetgrid/pkg/summary"
	"github.com/meetgrid/meetgrid/pkg/webrtc"
	"github.com/prometheus/client_golang/prometheus"
)

// Hub keeps the office state: live user connections, meeting rooms,
// and the records plane with its administrative operations. It plays
// the part of the hosted document store of the original application,
// clients subscribe over a websocket and receive pushed change events
// instead of database snapshots.
type Hub struct {
	service.Service

	conf      config.OfficeConfig
	log       *logger.Logger
	connector *com.Connector
	store     *Store
	meetings  *Meetings
	spaces    SpaceLibrary
	summary   summary.Provider
	storage   storage.CloudStorage
	metrics   *monitoring.Metrics
	users     com.NetMap[com.Uid, *Client]
	rooms     com.Map[string, *Room]
	lock      *os.Flock
}

func NewHub(conf config.OfficeConfig, lib SpaceLibrary, log *logger.Logger) *Hub {
	store := NewStore()
	cloud, err := storage.GetCloudStorage(conf.Storage.Provider, conf.Storage.Key)
	if err != nil {
		log.Error().Err(err).Msgf("cloud storage fail, provider: %v", conf.Storage.Provider)
	}
	// the process registry is only claimed when the metrics endpoint
	// is on, multiple hubs in one process stay possible
	var reg prometheus.Registerer
	if conf.Office.Monitoring.MetricEnabled {
		reg = prometheus.DefaultRegisterer
	}
	return &Hub{
		conf:      conf,
		log:       log,
		connector: com.NewConnector(com.WithOrigin(conf.Office.Origin.UserWs)),
		store:     store,
		meetings:  NewMeetings(store, store, log),
		spaces:    lib,
		summary:   summary.New(conf.Summary),
		storage:   cloud,
		metrics:   monitoring.NewMetrics(reg),
		users:     com.NewNetMap[com.Uid, *Client](),
		rooms:     com.NewMap[string, *Room](),
	}
}

func (h *Hub) Run() {}

func (h *Hub) Shutdown(context.Context) error {
	h.rooms.ForEach(func(r *Room) { r.Close("the office is shutting down") })
	h.users.ForEach(func(u *Client) { u.Disconnect() })
	if h.lock != nil {
		return h.lock.Unlock()
	}
	return nil
}

// handleUserConnection handles all connections from user agents.
func (h *Hub) handleUserConnection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.log.Debug().Msgf("Handshake %v", r.Host)
		conn, err := h.connector.NewServer(w, r, h.log)
		if err != nil {
			h.log.Error().Err(err).Msg("couldn't init user connection")
			return
		}
		user := NewClient(conn, h.log)
		defer h.terminate(user)

		user.HandleRequests(h)
		h.users.Add(user)
		h.metrics.Online(h.users.Len())

		// ICE urls may carry a {server-ip} placeholder for the host
		// the user dialed
		host := r.Host
		if hn, _, err := net.SplitHostPort(host); err == nil {
			host = hn
		}
		user.InitSession(api.Session{
			Id:     user.Id(),
			Ice:    webrtc.ReplaceServers(h.conf.Webrtc.IceServers, webrtc.Replacement{From: "server-ip", To: host}),
			Spaces: h.spaces.Names(),
		})
		h.log.Info().Str("u", user.Id().Short()).Msgf("User connected")
		user.Listen()
	}
}

// terminate cleans up after a disconnected user: the room sees a
// regular leave, pending signals of the pair purge with it.
func (h *Hub) terminate(user *Client) {
	h.leaveRoom(user)
	h.users.Remove(user)
	user.Disconnect()
	h.metrics.Online(h.users.Len())
	h.log.Info().Str("u", user.Id().Short()).Msgf("User disconnected")
}

// joinRoom attaches the user to the requested meeting room, creating
// the room and its meeting record implicitly on the first join.
func (h *Hub) joinRoom(user *Client, rq api.JoinRoomRequest) (*api.RoomState, error) {
	rid := rq.Rid
	if rid == "" {
		rid = com.NewUid().String()
	}

	meeting := h.store.Meeting(rid)
	if meeting == nil {
		space := h.newSpace(rq.Space)
		meeting = h.store.AddMeeting(&api.Meeting{
			Id:        rid,
			Title:     rq.Space,
			SpaceId:   space.Id,
			Creator:   user.Id(),
			Active:    true,
			CreatedAt: time.Now().Unix(),
		})
		h.log.Info().Str("r", rid).Msgf("New meeting in space [%v]", space.Name)
	}
	if !meeting.Active {
		return nil, api.ErrClosed
	}

	h.store.AddAttendee(rid, user.Id())
	h.store.EnsureUser(user.Id(), rq.Name)
	_ = h.store.Update(user.Id(), func(u *api.User) { addUid(&u.PendingSpace, meeting.SpaceId) })

	room, err := h.rooms.Find(rid)
	if err != nil {
		room = NewRoom(rid, h.conf.Recording, h.metrics, h.log)
		h.rooms.Put(rid, room)
		h.metrics.Rooms(h.rooms.Len())
	}

	state := room.Join(user, api.Participant{
		Id:       user.Id(),
		Name:     rq.Name,
		Pos:      rq.Pos,
		MicOn:    true,
		CamOn:    true,
		JoinedAt: time.Now().Unix(),
	})
	state.Meeting = *h.store.Meeting(rid)
	return &state, nil
}

func (h *Hub) leaveRoom(user *Client) {
	room := user.Room()
	if room == nil {
		return
	}
	user.SetRoom(nil)
	room.Leave(user)
}

// newSpace instantiates a space record from a library template,
// unknown names produce a blank unbounded space.
func (h *Hub) newSpace(template string) *api.Space {
	space := &api.Space{Id: com.NewUid(), Name: template, Template: template}
	if meta := h.spaces.FindByName(template); meta.Name != "" {
		space.Name = meta.Name
		space.W = meta.W
		space.H = meta.H
	}
	return h.store.AddSpace(space)
}

// endMeeting handles the end-for-all administrative action.
func (h *Hub) endMeeting(user *Client, rq api.EndMeetingRequest) (*api.AdminResult, error) {
	res, err := h.meetings.End(rq.Rid, user.Id(), user.Name(), rq.Reason)
	if err != nil {
		return nil, err
	}
	h.metrics.AdminOp("end")
	h.closeRoom(rq.Rid, noticeText("This meeting was ended by the host", rq.Reason))
	return res, nil
}

// deleteMeeting handles the meeting delete administrative action.
func (h *Hub) deleteMeeting(user *Client, rq api.DeleteMeetingRequest) (*api.AdminResult, error) {
	res, err := h.meetings.Delete(rq.Rid, user.Id(), user.Name(), rq.Reason)
	if err != nil {
		return nil, err
	}
	h.metrics.AdminOp("delete")
	h.closeRoom(rq.Rid, noticeText("This meeting was deleted", rq.Reason))
	return res, nil
}

// evictUser handles the remove-one-attendee administrative action.
func (h *Hub) evictUser(user *Client, rq api.EvictUserRequest) (*api.AdminResult, error) {
	res, err := h.meetings.Evict(rq.Rid, rq.User, user.Id(), user.Name(), rq.Reason)
	if err != nil {
		return nil, err
	}
	h.metrics.AdminOp("evict")
	if room, err := h.rooms.Find(rq.Rid); err == nil {
		if victim := room.Evict(rq.User, noticeText("You were removed from this meeting", rq.Reason)); victim != nil {
			victim.SetRoom(nil)
		}
	}
	return res, nil
}

// closeRoom shuts a live room down and detaches all its members.
func (h *Hub) closeRoom(rid string, reason string) {
	room, err := h.rooms.Find(rid)
	if err != nil {
		return
	}
	members := room.Members()
	room.Close(reason)
	for _, m := range members {
		m.SetRoom(nil)
	}
	h.rooms.RemoveByKey(rid)
	h.metrics.Rooms(h.rooms.Len())
}

// record toggles the meeting recording and, on stop, uploads the
// artifact and posts a summary into the room chat.
func (h *Hub) record(user *Client, rq api.Recording) {
	room := user.Room()
	if room == nil {
		return
	}
	h.store.SetRecording(room.Id(), rq.Active)
	if rq.Active {
		h.metrics.RecordingStarted()
		room.Record(true, user.Name())
		return
	}
	minutes := room.Record(false, user.Name())
	if minutes == nil {
		return
	}
	go h.publishRecording(room, *minutes)
}

// publishRecording runs the slow part of the recording stop out of
// the packet loop: artifact upload and the meeting summary.
func (h *Hub) publishRecording(room *Room, minutes summary.Minutes) {
	if artifact := room.Artifact(); artifact != "" {
		if err := h.storage.Save(room.Id()+".zip", artifact); err != nil {
			h.log.Error().Err(err).Str("r", room.Id()).Msg("recording upload failed")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	text, err := h.summary.Summarize(ctx, minutes)
	if err != nil {
		h.log.Error().Err(err).Str("r", room.Id()).Msg("summary failed")
		return
	}
	room.Chat(api.ChatMessage{System: true, Author: "meetgrid", Text: text})
}

func noticeText(base string, reason string) string {
	if reason == "" {
		return base
	}
	return base + ": " + reason
}

func addUid(list *[]com.Uid, id com.Uid) {
	for _, v := range *list {
		if v == id {
			return
		}
	}
	*list = append(*list, id)
}

func removeUid(list *[]com.Uid, id com.Uid) {
	for i, v := range *list {
		if v == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}
