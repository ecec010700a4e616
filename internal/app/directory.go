package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Peer is a room member together with the connection used to reach it.
type Peer struct {
	ID   domain.ParticipantID
	Conn core.SignalConnection
}

// LeaveResult describes a completed (or no-op) leave.
type LeaveResult struct {
	Room        domain.RoomID
	Participant domain.ParticipantID
	// Remaining members of Room after the leave.
	Remaining []Peer
	// Left is false when the connection was not in a room.
	Left bool
}

type JoinResult struct {
	Room        domain.RoomID
	Participant domain.ParticipantID
	// Peers are the other members of Room, never the joiner.
	Peers []Peer
	// Left is set when joining implied leaving a different room first.
	Left *LeaveResult
	// Rejoin is true when the participant was already in Room under the same id.
	Rejoin bool
}

type entry struct {
	p    domain.Participant
	conn core.SignalConnection
}

// Directory is the in-memory room membership table. It never talks to the
// network; results carry enough for the caller to decide what to broadcast.
type Directory struct {
	mu           sync.RWMutex
	participants map[domain.ConnID]*entry
	rooms        map[domain.RoomID]map[domain.ParticipantID]domain.ConnID
}

func NewDirectory() *Directory {
	return &Directory{
		participants: make(map[domain.ConnID]*entry),
		rooms:        make(map[domain.RoomID]map[domain.ParticipantID]domain.ConnID),
	}
}

// Connect creates the participant record for a new transport connection.
func (d *Directory) Connect(id domain.ConnID, clientToken string, conn core.SignalConnection) domain.Participant {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := &entry{
		p:    domain.Participant{Conn: id, ClientToken: clientToken},
		conn: conn,
	}
	d.participants[id] = e
	log.Debug().Str("module", "app.directory").Str("conn", string(id)).Msg("participant connected")
	return e.p
}

// Join moves the connection into room under pid. An empty pid defaults to
// the connection id.
func (d *Directory) Join(id domain.ConnID, room domain.RoomID, pid domain.ParticipantID) (JoinResult, error) {
	if err := room.Validate(); err != nil {
		return JoinResult{}, err
	}
	if pid == "" {
		pid = domain.ParticipantID(id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.participants[id]
	if !ok {
		return JoinResult{}, domain.ErrUnknownParticipant
	}
	if owner, taken := d.rooms[room][pid]; taken && owner != id {
		return JoinResult{}, domain.ErrParticipantTaken
	}

	res := JoinResult{Room: room, Participant: pid}
	if e.p.Room == room && e.p.ID == pid {
		res.Rejoin = true
		res.Peers = d.peersLocked(room, pid)
		return res, nil
	}
	if e.p.InRoom() {
		left := d.leaveLocked(e)
		res.Left = &left
	}

	members, ok := d.rooms[room]
	if !ok {
		members = make(map[domain.ParticipantID]domain.ConnID)
		d.rooms[room] = members
		log.Info().Str("module", "app.directory").Str("room", string(room)).Msg("room created")
	}
	members[pid] = id
	e.p.Room = room
	e.p.ID = pid
	res.Peers = d.peersLocked(room, pid)

	log.Info().
		Str("module", "app.directory").
		Str("conn", string(id)).
		Str("room", string(room)).
		Str("participant", string(pid)).
		Int("members", len(members)).
		Msg("joined")
	return res, nil
}

// Leave removes the connection from its current room. It is a no-op when the
// connection is not in a room, so calling it twice is the same as once.
func (d *Directory) Leave(id domain.ConnID) LeaveResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.participants[id]
	if !ok || !e.p.InRoom() {
		return LeaveResult{}
	}
	return d.leaveLocked(e)
}

// Disconnect performs Leave and discards the participant record.
func (d *Directory) Disconnect(id domain.ConnID) LeaveResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.participants[id]
	if !ok {
		return LeaveResult{}
	}
	var res LeaveResult
	if e.p.InRoom() {
		res = d.leaveLocked(e)
	}
	delete(d.participants, id)
	log.Debug().Str("module", "app.directory").Str("conn", string(id)).Msg("participant discarded")
	return res
}

func (d *Directory) leaveLocked(e *entry) LeaveResult {
	room, pid := e.p.Room, e.p.ID
	res := LeaveResult{Room: room, Participant: pid, Left: true}

	if members, ok := d.rooms[room]; ok {
		if members[pid] == e.p.Conn {
			delete(members, pid)
		}
		if len(members) == 0 {
			delete(d.rooms, room)
			log.Info().Str("module", "app.directory").Str("room", string(room)).Msg("room removed")
		}
	}
	e.p.Room = ""
	e.p.ID = ""
	res.Remaining = d.peersLocked(room, "")

	log.Info().
		Str("module", "app.directory").
		Str("conn", string(e.p.Conn)).
		Str("room", string(room)).
		Str("participant", string(pid)).
		Msg("left")
	return res
}

// peersLocked returns room members except skip, ordered by id.
func (d *Directory) peersLocked(room domain.RoomID, skip domain.ParticipantID) []Peer {
	members := d.rooms[room]
	out := make([]Peer, 0, len(members))
	for pid, cid := range members {
		if pid == skip {
			continue
		}
		if e, ok := d.participants[cid]; ok {
			out = append(out, Peer{ID: pid, Conn: e.conn})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MembersOf returns a sorted snapshot of the participant ids in room.
func (d *Directory) MembersOf(room domain.RoomID) []domain.ParticipantID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.memberIDsLocked(room)
}

func (d *Directory) memberIDsLocked(room domain.RoomID) []domain.ParticipantID {
	members := d.rooms[room]
	out := make([]domain.ParticipantID, 0, len(members))
	for pid := range members {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Route resolves pid inside room.
func (d *Directory) Route(room domain.RoomID, pid domain.ParticipantID) (core.SignalConnection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cid, ok := d.rooms[room][pid]
	if !ok {
		return nil, false
	}
	e, ok := d.participants[cid]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Peers returns every member of the connection's room except the connection itself.
func (d *Directory) Peers(id domain.ConnID) []Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.participants[id]
	if !ok || !e.p.InRoom() {
		return nil
	}
	return d.peersLocked(e.p.Room, e.p.ID)
}

func (d *Directory) RoomOf(id domain.ConnID) (domain.RoomID, domain.ParticipantID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.participants[id]
	if !ok || !e.p.InRoom() {
		return "", "", false
	}
	return e.p.Room, e.p.ID, true
}

func (d *Directory) Participant(id domain.ConnID) (domain.Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.participants[id]
	if !ok {
		return domain.Participant{}, false
	}
	return e.p, true
}

func (d *Directory) lookup(id domain.ConnID) (domain.Participant, core.SignalConnection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.participants[id]
	if !ok {
		return domain.Participant{}, nil, false
	}
	return e.p, e.conn, true
}

// Rename updates the display name of a connected participant.
func (d *Directory) Rename(id domain.ConnID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.participants[id]
	if !ok {
		return domain.ErrUnknownParticipant
	}
	return e.p.SetDisplayName(name)
}

func (d *Directory) Room(room domain.RoomID) (domain.RoomInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.rooms[room]; !ok {
		return domain.RoomInfo{}, false
	}
	ids := d.memberIDsLocked(room)
	return domain.RoomInfo{ID: room, Participants: ids, Count: len(ids)}, true
}

// List returns every non-empty room ordered by id.
func (d *Directory) List() []domain.RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(d.rooms))
	for room := range d.rooms {
		ids := d.memberIDsLocked(room)
		out = append(out, domain.RoomInfo{ID: room, Participants: ids, Count: len(ids)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats reports the number of rooms and of joined participants.
func (d *Directory) Stats() (rooms, joined int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, members := range d.rooms {
		joined += len(members)
	}
	return len(d.rooms), joined
}
