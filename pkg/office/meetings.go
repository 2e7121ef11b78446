package office

import (
	"time"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// Dashboard writes one user dashboard record. The store implements
// it, tests substitute a failing writer.
type Dashboard interface {
	Update(uid com.Uid, fn func(u *api.User)) error
}

// Meetings is the administrative plane over the meeting records: end
// for all, delete, evict one attendee. Only the meeting creator may
// run these. The per-user dashboard updates are independent writes,
// a failed one is logged and skipped while the rest proceed, and the
// operation still reports success. Concurrent admin actions on the
// same user may lose an update, there is no occ check on the records.
type Meetings struct {
	store *Store
	dash  Dashboard
	log   *logger.Logger
}

func NewMeetings(store *Store, dash Dashboard, log *logger.Logger) *Meetings {
	return &Meetings{store: store, dash: dash, log: log}
}

// End closes the meeting for everyone: one dashboard update per
// unique id in attendees plus creator, then the record goes inactive
// with an audit note.
func (m *Meetings) End(id string, actor com.Uid, actorName string, reason string) (*api.AdminResult, error) {
	meeting, err := m.authorize(id, actor)
	if err != nil {
		return nil, err
	}
	affected := affectedUsers(meeting)
	res := m.hideFromDashboards(affected, meeting.SpaceId)
	_ = m.store.UpdateMeeting(id, func(mt *api.Meeting) {
		mt.Active = false
		mt.EndedAt = now()
		mt.Audit = append(mt.Audit, audit("end", actor, actorName, affected, reason))
	})
	m.log.Info().Str("r", id).Msgf("Meeting ended by %v", actorName)
	return res, nil
}

// Delete removes the meeting and its space record. The dashboards of
// everyone affected keep a hidden marker with the deleted space id.
func (m *Meetings) Delete(id string, actor com.Uid, actorName string, reason string) (*api.AdminResult, error) {
	meeting, err := m.authorize(id, actor)
	if err != nil {
		return nil, err
	}
	affected := affectedUsers(meeting)
	res := m.hideFromDashboards(affected, meeting.SpaceId)
	_ = m.store.UpdateMeeting(id, func(mt *api.Meeting) {
		mt.Audit = append(mt.Audit, audit("delete", actor, actorName, affected, reason))
	})
	m.store.DeleteMeeting(id)
	m.store.DeleteSpace(meeting.SpaceId)
	m.log.Info().Str("r", id).Msgf("Meeting deleted by %v", actorName)
	return res, nil
}

// Evict removes one attendee: their dashboard only, the attendee
// list shrinks by exactly that id, nobody else is touched.
func (m *Meetings) Evict(id string, victim com.Uid, actor com.Uid, actorName string, reason string) (*api.AdminResult, error) {
	meeting, err := m.authorize(id, actor)
	if err != nil {
		return nil, err
	}
	affected := []com.Uid{victim}
	res := m.hideFromDashboards(affected, meeting.SpaceId)
	_ = m.store.UpdateMeeting(id, func(mt *api.Meeting) {
		removeUid(&mt.Attendees, victim)
		mt.Audit = append(mt.Audit, audit("evict", actor, actorName, affected, reason))
	})
	m.log.Info().Str("r", id).Str("u", victim.Short()).Msgf("Attendee evicted by %v", actorName)
	return res, nil
}

func (m *Meetings) authorize(id string, actor com.Uid) (*api.Meeting, error) {
	meeting := m.store.Meeting(id)
	if meeting == nil {
		return nil, api.ErrNotFound
	}
	if meeting.Creator != actor {
		return nil, api.ErrForbidden
	}
	return meeting, nil
}

// hideFromDashboards drops the space from the pending list and marks
// it hidden, one attempt per user. Failures count as skipped and the
// rest of the fan-out continues.
func (m *Meetings) hideFromDashboards(ids []com.Uid, space com.Uid) *api.AdminResult {
	res := api.AdminResult{Ok: true}
	for _, uid := range ids {
		err := m.dash.Update(uid, func(u *api.User) {
			removeUid(&u.PendingSpace, space)
			addUid(&u.HiddenSpace, space)
		})
		if err != nil {
			m.log.Warn().Err(err).Str("u", uid.Short()).Msg("dashboard update skipped")
			res.Skipped++
			continue
		}
		res.Updated++
	}
	return &res
}

// affectedUsers is the unique set of attendees plus the creator, in
// attendee order.
func affectedUsers(m *api.Meeting) []com.Uid {
	ids := make([]com.Uid, 0, len(m.Attendees)+1)
	for _, a := range m.Attendees {
		addUid(&ids, a)
	}
	addUid(&ids, m.Creator)
	return ids
}

func audit(kind string, actor com.Uid, name string, affected []com.Uid, reason string) api.AuditEntry {
	return api.AuditEntry{Kind: kind, Actor: actor, Name: name, Affected: affected, Reason: reason, At: now()}
}

func now() int64 { return time.Now().Unix() }
