// Package game implements the multiplayer core above the raw transports:
// snapshot synchronization with interpolation, match rules, and the session
// orchestrator that ties room membership, peer links, and game state
// together. The rendering and simulation layers plug in through callbacks;
// this package holds no engine state.
package game

import (
	"sort"
	"sync"
	"time"

	"github.com/hollowpoint/doomgate-mp/shared/netconfig"
	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

// RenderedState is the reconstructed remote-entity state handed to the
// avatar layer. Position and Yaw come from interpolation or dead reckoning;
// Latest carries the newest raw snapshot for discrete fields like health
// and weapon.
type RenderedState struct {
	Position protocol.Vec3
	Yaw      float64
	Latest   protocol.EntitySnapshot
}

// snapshotBuffer is a bounded, timestamp-ordered snapshot history for one
// entity. Out-of-order arrivals are inserted in timestamp order; once the
// buffer is full, samples older than everything retained are dropped and
// the oldest entry is evicted on insert.
type snapshotBuffer struct {
	snaps []protocol.EntitySnapshot
	max   int
}

func newSnapshotBuffer(max int) *snapshotBuffer {
	return &snapshotBuffer{max: max}
}

func (b *snapshotBuffer) insert(s protocol.EntitySnapshot) {
	if len(b.snaps) >= b.max && s.Timestamp < b.snaps[0].Timestamp {
		return
	}

	i := sort.Search(len(b.snaps), func(i int) bool {
		return b.snaps[i].Timestamp > s.Timestamp
	})
	b.snaps = append(b.snaps, protocol.EntitySnapshot{})
	copy(b.snaps[i+1:], b.snaps[i:])
	b.snaps[i] = s

	if len(b.snaps) > b.max {
		b.snaps = b.snaps[1:]
	}
}

func (b *snapshotBuffer) len() int {
	return len(b.snaps)
}

// Synchronizer converts local state into a fixed-cadence snapshot stream
// and reconstructs smooth remote state from received, possibly reordered,
// possibly lossy snapshots.
type Synchronizer struct {
	mu      sync.Mutex
	buffers map[string]*snapshotBuffer

	interpDelay  time.Duration
	sendInterval time.Duration
	lastSend     time.Time
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{
		buffers:      make(map[string]*snapshotBuffer),
		interpDelay:  netconfig.InterpolationDelay,
		sendInterval: time.Second / netconfig.SnapshotRate,
	}
}

// Ingest buffers one inbound snapshot for a remote entity.
func (s *Synchronizer) Ingest(id string, snap protocol.EntitySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[id]
	if !ok {
		buf = newSnapshotBuffer(netconfig.SnapshotBufferSize)
		s.buffers[id] = buf
	}
	buf.insert(snap)
}

// Drop discards the buffered history for a disconnected entity.
func (s *Synchronizer) Drop(id string) {
	s.mu.Lock()
	delete(s.buffers, id)
	s.mu.Unlock()
}

// BufferLen reports the number of buffered snapshots for an entity.
func (s *Synchronizer) BufferLen(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.buffers[id]; ok {
		return buf.len()
	}
	return 0
}

// RenderTime converts a wall clock into the render timestamp: slightly in
// the past so bracketing snapshots are usually available. The cost is up to
// the interpolation delay of staleness; the payoff is that remote entities
// never teleport to newly arrived data.
func (s *Synchronizer) RenderTime(now time.Time) int64 {
	return now.UnixMilli() - s.interpDelay.Milliseconds()
}

// Render reconstructs the remote entity's state at renderTime (sender-clock
// ms). With bracketing snapshots it interpolates position and yaw; with
// only older data it dead-reckons position from the newest snapshot's
// velocity and holds yaw. ok is false when nothing is buffered; the caller
// must treat that as unknown, not as an error.
func (s *Synchronizer) Render(id string, renderTime int64) (RenderedState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[id]
	if !ok || buf.len() == 0 {
		return RenderedState{}, false
	}
	snaps := buf.snaps

	for i := 0; i < len(snaps)-1; i++ {
		s1, s2 := snaps[i], snaps[i+1]
		if s1.Timestamp <= renderTime && renderTime <= s2.Timestamp {
			t := 0.0
			if s2.Timestamp > s1.Timestamp {
				t = float64(renderTime-s1.Timestamp) / float64(s2.Timestamp-s1.Timestamp)
			}
			return RenderedState{
				Position: s1.Position.Lerp(s2.Position, t),
				Yaw:      s1.Yaw + (s2.Yaw-s1.Yaw)*t,
				Latest:   snaps[len(snaps)-1],
			}, true
		}
	}

	// Dead reckoning off the newest sample. Facing is not extrapolated.
	newest := snaps[len(snaps)-1]
	dt := float64(renderTime-newest.Timestamp) / 1000.0
	return RenderedState{
		Position: newest.Position.Add(newest.Velocity.Scale(dt)),
		Yaw:      newest.Yaw,
		Latest:   newest,
	}, true
}

// ShouldSend gates the broadcast path on elapsed wall-clock time so the
// snapshot rate is independent of the caller's frame rate.
func (s *Synchronizer) ShouldSend(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSend) < s.sendInterval {
		return false
	}
	s.lastSend = now
	return true
}
