package office

import (
	"sync"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// Client is one connected user of the office.
type Client struct {
	id   com.Uid
	conn *com.Client
	log  *logger.Logger

	mu   sync.Mutex
	name string
	room *Room
}

func NewClient(conn *com.Client, log *logger.Logger) *Client {
	id := com.NewUid()
	return &Client{id: id, conn: conn, log: log.Extend(log.With().Str("u", id.Short()))}
}

func (c *Client) Id() com.Uid { return c.id }

func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Client) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) SetRoom(room *Room) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Client) InitSession(s api.Session) { c.Notify(api.InitSession, s) }

func (c *Client) Notify(t api.PT, pl any) { _ = c.conn.Send(uint8(t), pl) }

func (c *Client) Listen() { c.conn.Listen(); <-c.conn.Wait() }

func (c *Client) Disconnect() { c.conn.Close() }

// HandleRequests routes all incoming packets of the user connection.
func (c *Client) HandleRequests(h *Hub) {
	c.conn.OnPacket(func(p com.In) {
		switch api.PT(p.T) {
		case api.CheckLatency:
			c.route(p, p.Payload)
		case api.JoinRoom:
			rq := api.Unwrap[api.JoinRoomRequest](p.Payload)
			if rq == nil {
				c.fail(p, api.ErrMalformed.Error())
				return
			}
			c.HandleJoinRoom(p, *rq, h)
		case api.LeaveRoom:
			h.leaveRoom(c)
		case api.Presence:
			if rq := api.Unwrap[api.Participant](p.Payload); rq != nil {
				c.HandlePresence(*rq)
			}
		case api.Chat:
			if rq := api.Unwrap[api.ChatMessage](p.Payload); rq != nil {
				c.HandleChat(*rq, h)
			}
		case api.RecordMeet:
			if rq := api.Unwrap[api.Recording](p.Payload); rq != nil {
				h.record(c, *rq)
				c.route(p, api.OK)
			}
		case api.SignalOffer:
			c.HandleSignal(api.SigOffer, p.Payload, h)
		case api.SignalAnswer:
			c.HandleSignal(api.SigAnswer, p.Payload, h)
		case api.SignalCandidate:
			c.HandleSignal(api.SigCandidate, p.Payload, h)
		case api.MeetingList:
			c.route(p, h.store.Meetings())
		case api.MeetingEnd:
			rq := api.Unwrap[api.EndMeetingRequest](p.Payload)
			if rq == nil {
				c.fail(p, api.ErrMalformed.Error())
				return
			}
			c.admin(p, func() (*api.AdminResult, error) { return h.endMeeting(c, *rq) })
		case api.MeetingDelete:
			rq := api.Unwrap[api.DeleteMeetingRequest](p.Payload)
			if rq == nil {
				c.fail(p, api.ErrMalformed.Error())
				return
			}
			c.admin(p, func() (*api.AdminResult, error) { return h.deleteMeeting(c, *rq) })
		case api.MeetingEvict:
			rq := api.Unwrap[api.EvictUserRequest](p.Payload)
			if rq == nil {
				c.fail(p, api.ErrMalformed.Error())
				return
			}
			c.admin(p, func() (*api.AdminResult, error) { return h.evictUser(c, *rq) })
		default:
			c.log.Warn().Msgf("Unknown packet %v", p.T)
		}
	})
}

func (c *Client) HandleJoinRoom(p com.In, rq api.JoinRoomRequest, h *Hub) {
	if room := c.Room(); room != nil {
		// a second join moves the user, the old room sees a leave
		h.leaveRoom(c)
	}
	c.setName(rq.Name)
	state, err := h.joinRoom(c, rq)
	if err != nil {
		c.log.Error().Err(err).Str("r", rq.Rid).Msg("join failed")
		c.fail(p, err.Error())
		return
	}
	if room, err := h.rooms.Find(state.Rid); err == nil {
		c.SetRoom(room)
	}
	c.log.Info().Str("r", state.Rid).Msgf("Joined [%v]", rq.Name)
	c.route(p, state)
}

func (c *Client) HandlePresence(rq api.Participant) {
	room := c.Room()
	if room == nil {
		return
	}
	rq.Id = c.id
	rq.Name = c.Name()
	room.Presence(c, rq)
}

func (c *Client) HandleChat(rq api.ChatMessage, h *Hub) {
	room := c.Room()
	if room == nil {
		return
	}
	room.Chat(api.ChatMessage{From: c.id, Author: c.Name(), Text: rq.Text})
	h.metrics.ChatMessage()
}

func (c *Client) HandleSignal(kind string, payload []byte, h *Hub) {
	rq := api.Unwrap[api.Signal](payload)
	if rq == nil {
		return
	}
	room := c.Room()
	if room == nil {
		return
	}
	if room.AddSignal(kind, c.id, rq.To, rq.Data) {
		h.metrics.Signal(kind)
	}
}

func (c *Client) admin(p com.In, op func() (*api.AdminResult, error)) {
	res, err := op()
	if err != nil {
		c.log.Error().Err(err).Msg("admin operation failed")
		c.fail(p, err.Error())
		return
	}
	c.route(p, res)
}

func (c *Client) route(p com.In, pl any) { _ = c.conn.Route(p, pl) }

// fail answers a request with an empty payload, the error stays in
// the office log only.
func (c *Client) fail(p com.In, reason string) {
	c.log.Debug().Msgf("Rejected %v: %v", api.PT(p.T), reason)
	c.route(p, api.EMPTY)
}
