package api

import (
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/config"
)

// Session is the hello packet of the office pushed right after a connect.
type Session struct {
	Id     com.Uid            `json:"id"`
	Ice    []config.IceServer `json:"ice"`
	Spaces []string           `json:"spaces,omitempty"`
}

// Pos is an avatar position on the space map.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Participant is a live presence row of one meeting member.
// Clients send partial rows (position and toggles), the office
// fills in identity fields before the fan-out.
type Participant struct {
	Id       com.Uid `json:"id"`
	Name     string  `json:"name,omitempty"`
	Pos      Pos     `json:"pos"`
	MicOn    bool    `json:"mic_on"`
	CamOn    bool    `json:"cam_on"`
	Together bool    `json:"together,omitempty"`
	JoinedAt int64   `json:"joined_at,omitempty"`
}

type JoinRoomRequest struct {
	Rid   string `json:"room_id"`
	Name  string `json:"name"`
	Space string `json:"space,omitempty"`
	Pos   Pos    `json:"pos"`
}

// RoomState is the snapshot a client receives on join and on watch
// re-establishment. Snapshots may repeat, receivers should treat them
// as idempotent upserts and dedupe signals by record id.
type RoomState struct {
	Rid       string        `json:"room_id"`
	Meeting   Meeting       `json:"meeting"`
	Users     []Participant `json:"users"`
	Recording bool          `json:"recording,omitempty"`
	Signals   []Signal      `json:"signals,omitempty"`
}

// Signal kinds.
const (
	SigOffer     = "offer"
	SigAnswer    = "answer"
	SigCandidate = "candidate"
)

// Signal is a single signaling record: an SDP description or an ICE
// candidate addressed from one member to another. Records are written
// once and never updated, the id makes duplicate deliveries detectable.
type Signal struct {
	Id   com.Uid `json:"id"`
	Kind string  `json:"kind"`
	From com.Uid `json:"from"`
	To   com.Uid `json:"to"`
	Data string  `json:"data"`
	At   int64   `json:"at,omitempty"`
}

type ChatMessage struct {
	Id     com.Uid `json:"id,omitempty"`
	Rid    string  `json:"room_id,omitempty"`
	From   com.Uid `json:"from,omitempty"`
	Author string  `json:"author,omitempty"`
	System bool    `json:"system,omitempty"`
	Text   string  `json:"text"`
	At     int64   `json:"at,omitempty"`
}

// Recording carries the meeting recording toggle in both directions.
type Recording struct {
	Active bool   `json:"active"`
	User   string `json:"user,omitempty"`
}

// Meeting is the persistent meeting record of the meetings collection.
type Meeting struct {
	Id        string       `json:"id"`
	Title     string       `json:"title,omitempty"`
	SpaceId   com.Uid      `json:"space_id,omitempty"`
	Creator   com.Uid      `json:"creator,omitempty"`
	Attendees []com.Uid    `json:"attendees,omitempty"`
	Active    bool         `json:"active"`
	Recording bool         `json:"recording,omitempty"`
	Audit     []AuditEntry `json:"audit,omitempty"`
	CreatedAt int64        `json:"created_at,omitempty"`
	EndedAt   int64        `json:"ended_at,omitempty"`
}

// AuditEntry is one append-only administrative action note
// on a meeting record.
type AuditEntry struct {
	Kind     string    `json:"kind"` // end | delete | evict
	Actor    com.Uid   `json:"actor"`
	Name     string    `json:"name,omitempty"`
	Affected []com.Uid `json:"affected,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       int64     `json:"at"`
}

// Space is a meeting map instance built from a library template.
type Space struct {
	Id       com.Uid `json:"id"`
	Name     string  `json:"name"`
	Template string  `json:"template,omitempty"`
	W        int     `json:"w,omitempty"`
	H        int     `json:"h,omitempty"`
}

// User is a dashboard record. Pending spaces point to meetings the
// user was invited to, hidden spaces mark meetings removed from the
// dashboard by an admin action.
type User struct {
	Id           com.Uid   `json:"id"`
	Name         string    `json:"name,omitempty"`
	PendingSpace []com.Uid `json:"pending_space,omitempty"`
	HiddenSpace  []com.Uid `json:"hidden_space,omitempty"`
}

type EndMeetingRequest struct {
	Rid    string `json:"room_id"`
	Reason string `json:"reason,omitempty"`
}

type DeleteMeetingRequest struct {
	Rid    string `json:"room_id"`
	Reason string `json:"reason,omitempty"`
}

type EvictUserRequest struct {
	Rid    string  `json:"room_id"`
	User   com.Uid `json:"user"`
	Reason string  `json:"reason,omitempty"`
}

// AdminResult reports a finished administrative operation.
// Partial dashboard update failures don't fail the operation,
// they are counted in Skipped.
type AdminResult struct {
	Ok      bool `json:"ok"`
	Updated int  `json:"updated,omitempty"`
	Skipped int  `json:"skipped,omitempty"`
}

// CloseNotice tells a member their meeting was ended or
// they were removed from it.
type CloseNotice struct {
	Rid    string `json:"room_id"`
	Reason string `json:"reason,omitempty"`
}
