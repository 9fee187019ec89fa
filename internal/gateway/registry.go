package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxConnectionsPerIdentity is the default connection-count cap enforced at upgrade time; Registry accepts an
// override so config.Config.GatewayMaxConnectionsPerUser can drive it.
const MaxConnectionsPerIdentity = 5

// Registry is the process-wide mapping from room name to the set of currently-connected clients in that room. It is
// the authoritative source of "who is here right now" and the only piece of shared mutable state in the gateway;
// persistence and search calls must never happen while its lock is held.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[uuid.UUID]*Client

	maxPerIdentity int
}

// NewRegistry constructs an empty Registry. maxPerIdentity is the connection-count cap; callers pass
// config.Config.GatewayMaxConnectionsPerUser (defaulting to MaxConnectionsPerIdentity when zero).
func NewRegistry(maxPerIdentity int) *Registry {
	if maxPerIdentity <= 0 {
		maxPerIdentity = MaxConnectionsPerIdentity
	}
	return &Registry{
		rooms:          make(map[string]map[uuid.UUID]*Client),
		maxPerIdentity: maxPerIdentity,
	}
}

// ConnectionCountForIdentity counts this identity's current Client entries across all rooms. It scans every room, as
// the reference behavior does; an implementer wanting O(1) may additionally maintain an identity→count index without
// changing this method's observable result.
func (r *Registry) ConnectionCountForIdentity(identity uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*Client]struct{})
	count := 0
	for _, occupants := range r.rooms {
		c, ok := occupants[identity]
		if !ok {
			continue
		}
		if _, already := seen[c]; already {
			continue
		}
		seen[c] = struct{}{}
		count++
	}
	return count
}

// AtCapacity reports whether identity already occupies maxPerIdentity distinct Client entries. This answers the
// Upgrade Handler's admission check in one lock acquisition instead of two.
func (r *Registry) AtCapacity(identity uuid.UUID) bool {
	return r.ConnectionCountForIdentity(identity) >= r.maxPerIdentity
}

// Join inserts client into room under identity, appending room to the client's own room set. A re-join by the same
// identity on the same connection is a no-op; from a different connection it replaces the occupant.
func (r *Registry) Join(room string, identity uuid.UUID, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	occupants, ok := r.rooms[room]
	if !ok {
		occupants = make(map[uuid.UUID]*Client)
		r.rooms[room] = occupants
	}
	occupants[identity] = client
	client.addRoom(room)
}

// Leave removes identity from room, reaping the room if it becomes empty. It returns the remaining occupants (a
// snapshot safe to range over without holding the lock) so callers can broadcast UserLeft afterward.
func (r *Registry) Leave(room string, identity uuid.UUID) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	occupants, ok := r.rooms[room]
	if !ok {
		return nil
	}
	delete(occupants, identity)
	if len(occupants) == 0 {
		delete(r.rooms, room)
		return nil
	}
	return snapshot(occupants)
}

// RemoveFromAll removes client's identity from every room it is present in under this connection, reaping any room
// that becomes empty as a result. Called on disconnect; this is the only cleanup path the Connection Actor needs.
func (r *Registry) RemoveFromAll(identity uuid.UUID, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range client.rooms() {
		occupants, ok := r.rooms[room]
		if !ok {
			continue
		}
		// Only remove the occupant if it is still this connection; a different connection for the same identity
		// may have since taken the slot.
		if occupants[identity] != client {
			continue
		}
		delete(occupants, identity)
		if len(occupants) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Broadcast sends frame to every client currently in room, optionally skipping one identity (the sender, for
// UserJoined/UserLeft deltas which exclude the actor). Clients whose outbound queue is full have the delivery
// dropped for them only; Broadcast does not block on a slow recipient.
func (r *Registry) Broadcast(room string, frame []byte, exclude *uuid.UUID) {
	r.mu.RLock()
	occupants := snapshot(r.rooms[room])
	r.mu.RUnlock()

	for _, c := range occupants {
		if exclude != nil && c.identity == *exclude {
			continue
		}
		c.enqueue(frame)
	}
}

// Occupants returns a snapshot of the clients currently in room, for dispatch logic that needs to address a single
// occupant directly (e.g. the WebRTC relay's scan for a target identity).
func (r *Registry) Occupants(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshot(r.rooms[room])
}

// FindByIdentity scans every room for a connected Client matching identity, returning the first one found. Used by
// the WebRTC relay, which forwards to the first live connection for the target identity and does not verify room
// co-membership (the spec notes an implementation may add that check; this one does not).
func (r *Registry) FindByIdentity(identity uuid.UUID) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, occupants := range r.rooms {
		if c, ok := occupants[identity]; ok {
			return c
		}
	}
	return nil
}

// OnlineUser is one row of the online-users snapshot consumed by the REST surface.
type OnlineUser struct {
	Identity    uuid.UUID
	DisplayName string
	Rooms       []string
	ConnectedAt time.Time
}

// OnlineUsersSnapshot synthesizes, from the registry, one entry per distinct identity with rooms collated across all
// registry rows for that identity. ConnectedAt is taken from the first Client row encountered for that identity.
func (r *Registry) OnlineUsersSnapshot() []OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byIdentity := make(map[uuid.UUID]*OnlineUser)
	var order []uuid.UUID

	for room, occupants := range r.rooms {
		for identity, c := range occupants {
			u, ok := byIdentity[identity]
			if !ok {
				u = &OnlineUser{Identity: identity, DisplayName: c.displayName, ConnectedAt: c.establishedAt}
				byIdentity[identity] = u
				order = append(order, identity)
			}
			u.Rooms = append(u.Rooms, room)
		}
	}

	out := make([]OnlineUser, 0, len(order))
	for _, id := range order {
		out = append(out, *byIdentity[id])
	}
	return out
}

func snapshot(m map[uuid.UUID]*Client) []*Client {
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
