package office

import (
	"sort"
	"sync"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
)

// Store is the office document base: meeting records, user dashboards
// and space definitions. Readers get detached copies, writers mutate
// the live record under the store lock through the Update callbacks.
// There are no transactions across records, multi-record operations
// apply one record at a time and tolerate partial outcomes.
type Store struct {
	mu       sync.RWMutex
	meetings map[string]*api.Meeting
	users    map[com.Uid]*api.User
	spaces   map[com.Uid]*api.Space
}

func NewStore() *Store {
	return &Store{
		meetings: make(map[string]*api.Meeting),
		users:    make(map[com.Uid]*api.User),
		spaces:   make(map[com.Uid]*api.Space),
	}
}

// Meeting returns a copy of one meeting record or nil.
func (s *Store) Meeting(id string) *api.Meeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil
	}
	c := cloneMeeting(m)
	return &c
}

// Meetings lists every meeting record, newest first.
func (s *Store) Meetings() []api.Meeting {
	s.mu.RLock()
	list := make([]api.Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		list = append(list, cloneMeeting(m))
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].Id < list[j].Id
	})
	return list
}

func (s *Store) AddMeeting(m *api.Meeting) *api.Meeting {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneMeeting(m)
	s.meetings[m.Id] = &c
	return m
}

// UpdateMeeting mutates one meeting record in place.
func (s *Store) UpdateMeeting(id string, fn func(m *api.Meeting)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return api.ErrNotFound
	}
	fn(m)
	return nil
}

func (s *Store) DeleteMeeting(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meetings, id)
}

// AddAttendee marks the user as an attendee of the meeting, once.
func (s *Store) AddAttendee(id string, uid com.Uid) {
	_ = s.UpdateMeeting(id, func(m *api.Meeting) {
		for _, a := range m.Attendees {
			if a == uid {
				return
			}
		}
		m.Attendees = append(m.Attendees, uid)
	})
}

func (s *Store) SetRecording(id string, active bool) {
	_ = s.UpdateMeeting(id, func(m *api.Meeting) { m.Recording = active })
}

// EnsureUser creates the dashboard record of the user on first
// contact and keeps the display name current after renames.
func (s *Store) EnsureUser(uid com.Uid, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		s.users[uid] = &api.User{Id: uid, Name: name}
		return
	}
	u.Name = name
}

// User returns a copy of one dashboard record or nil.
func (s *Store) User(uid com.Uid) *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[uid]
	if !ok {
		return nil
	}
	c := cloneUser(u)
	return &c
}

// Update mutates one user dashboard record in place. This is the
// write path of the admin fan-out, each call stands alone and a
// failure here never rolls back the others.
func (s *Store) Update(uid com.Uid, fn func(u *api.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return api.ErrNotFound
	}
	fn(u)
	return nil
}

func (s *Store) AddSpace(sp *api.Space) *api.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sp
	s.spaces[sp.Id] = &c
	return sp
}

// Space returns a copy of one space record or nil.
func (s *Store) Space(id com.Uid) *api.Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.spaces[id]
	if !ok {
		return nil
	}
	c := *sp
	return &c
}

func (s *Store) DeleteSpace(id com.Uid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spaces, id)
}

func cloneMeeting(m *api.Meeting) api.Meeting {
	c := *m
	c.Attendees = append([]com.Uid(nil), m.Attendees...)
	c.Audit = append([]api.AuditEntry(nil), m.Audit...)
	return c
}

func cloneUser(u *api.User) api.User {
	c := *u
	c.PendingSpace = append([]com.Uid(nil), u.PendingSpace...)
	c.HiddenSpace = append([]com.Uid(nil), u.HiddenSpace...)
	return c
}
