// Package api defines the general API for the office and agent applications.
//
// Each API call (request and response) is a JSON-encoded "packet" of the following structure:
//
//	id - (optional) a globally unique packet id;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
//
// The basic idea behind this API is that the packets differentiate by their predefined types
// with which it is possible to unwrap the payload into distinct request/response data structures.
// And the id field is used for tracking request/response packet pairs.
//
// Example:
//
//	{"t":4,"p":{"id":"cfv68irdrc3ifu3jn6bg","ice":[{"urls":"stun:stun.l.google.com:19302"}]}}
package api

import (
	"fmt"

	"github.com/goccy/go-json"
)

type PT uint8

// Packet codes:
//
//	x - session codes
//	1x - room codes
//	5x - meeting administration codes
//	1xx - signaling codes
const (
	CheckLatency PT = 3
	InitSession  PT = 4

	JoinRoom   PT = 10
	LeaveRoom  PT = 11
	UserJoined PT = 13
	UserLeft   PT = 14
	Presence   PT = 15
	Chat       PT = 16
	RecordMeet PT = 17

	MeetingList   PT = 50
	MeetingEnd    PT = 51
	MeetingDelete PT = 52
	MeetingEvict  PT = 53
	MeetingEnded  PT = 54
	Evicted       PT = 55

	SignalOffer     PT = 101
	SignalAnswer    PT = 102
	SignalCandidate PT = 103
)

func (p PT) String() string {
	switch p {
	case CheckLatency:
		return "CheckLatency"
	case InitSession:
		return "InitSession"
	case JoinRoom:
		return "JoinRoom"
	case LeaveRoom:
		return "LeaveRoom"
	case UserJoined:
		return "UserJoined"
	case UserLeft:
		return "UserLeft"
	case Presence:
		return "Presence"
	case Chat:
		return "Chat"
	case RecordMeet:
		return "RecordMeet"
	case MeetingList:
		return "MeetingList"
	case MeetingEnd:
		return "MeetingEnd"
	case MeetingDelete:
		return "MeetingDelete"
	case MeetingEvict:
		return "MeetingEvict"
	case MeetingEnded:
		return "MeetingEnded"
	case Evicted:
		return "Evicted"
	case SignalOffer:
		return "SignalOffer"
	case SignalAnswer:
		return "SignalAnswer"
	case SignalCandidate:
		return "SignalCandidate"
	default:
		return "Unknown"
	}
}

// Various codes
const (
	EMPTY = ""
	OK    = "ok"
)

var (
	ErrForbidden = fmt.Errorf("forbidden")
	ErrMalformed = fmt.Errorf("malformed")
	ErrNotFound  = fmt.Errorf("not found")
	ErrClosed    = fmt.Errorf("closed")
)

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

func UnwrapChecked[T any](bytes []byte, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	return Unwrap[T](bytes), nil
}
