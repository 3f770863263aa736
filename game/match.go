package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hollowpoint/doomgate-mp/shared/netconfig"
	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

// Flag home positions and spawn areas, in world units. Red owns the west
// side of the arena, blue the east.
var (
	redFlagHome  = protocol.Vec3{X: -50, Y: 0, Z: 0}
	blueFlagHome = protocol.Vec3{X: 50, Y: 0, Z: 0}
)

const (
	baseSpawnX    = 40.0
	spawnHeight   = 1.6
	baseSpawnSpan = 20.0 // z range at a team base
	arenaSpan     = 40.0 // x/z range for deathmatch spawns
)

// Flag is the replicated state of one CTF flag. If Carrier is set, AtBase
// is necessarily false.
type Flag struct {
	Home     protocol.Vec3
	Position protocol.Vec3
	Carrier  string
	AtBase   bool
}

// Match owns the game-mode rules layered on top of the synchronization
// primitives: team assignment, scoring, win detection, respawn placement,
// and the CTF flag lifecycle. Only the match mutates this state; the
// session applies peer events through it so scoring and respawn logic can
// never race each other.
type Match struct {
	mu sync.Mutex

	mode       protocol.Mode
	teams      map[protocol.Team][]string
	scores     map[string]int
	teamScores map[protocol.Team]int
	flags      map[protocol.Team]*Flag

	winner  protocol.Team
	ended   bool
	started time.Time

	rng *rand.Rand
}

func NewMatch(mode protocol.Mode) *Match {
	m := &Match{
		mode:  mode,
		teams: map[protocol.Team][]string{protocol.TeamRed: nil, protocol.TeamBlue: nil},
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.resetLocked()
	return m
}

func (m *Match) Mode() protocol.Mode {
	return m.mode
}

// Reset clears scores and returns flags home, as at match start. Team
// assignments survive a reset.
func (m *Match) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Match) resetLocked() {
	m.scores = make(map[string]int)
	m.teamScores = map[protocol.Team]int{protocol.TeamRed: 0, protocol.TeamBlue: 0}
	m.flags = map[protocol.Team]*Flag{
		protocol.TeamRed:  {Home: redFlagHome, Position: redFlagHome, AtBase: true},
		protocol.TeamBlue: {Home: blueFlagHome, Position: blueFlagHome, AtBase: true},
	}
	m.winner = protocol.TeamNone
	m.ended = false
	m.started = time.Now()
}

// Elapsed reports time since match start.
func (m *Match) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.started)
}

// AssignTeam puts a participant on the currently smaller team, red on ties.
// Deterministic given team sizes, which every replica converges on because
// assignment order follows room join order. Returns TeamNone outside team
// modes.
func (m *Match) AssignTeam(playerID string) protocol.Team {
	if !m.mode.TeamMode() {
		return protocol.TeamNone
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if team := m.teamOfLocked(playerID); team != protocol.TeamNone {
		return team
	}

	team := protocol.TeamRed
	if len(m.teams[protocol.TeamBlue]) < len(m.teams[protocol.TeamRed]) {
		team = protocol.TeamBlue
	}
	m.teams[team] = append(m.teams[team], playerID)
	return team
}

// SetTeam places a participant on the given team, moving it if already
// assigned elsewhere. Remote assignments arrive this way: each replica
// assigns only its local player and learns the rest from state snapshots.
func (m *Match) SetTeam(playerID string, team protocol.Team) {
	if team != protocol.TeamRed && team != protocol.TeamBlue {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.teamOfLocked(playerID) == team {
		return
	}
	m.removeLocked(playerID)
	m.teams[team] = append(m.teams[team], playerID)
}

// TeamOf reports a participant's team, TeamNone if unassigned.
func (m *Match) TeamOf(playerID string) protocol.Team {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teamOfLocked(playerID)
}

func (m *Match) teamOfLocked(playerID string) protocol.Team {
	for team, members := range m.teams {
		for _, id := range members {
			if id == playerID {
				return team
			}
		}
	}
	return protocol.TeamNone
}

// RemovePlayer takes a disconnected participant off its team so later
// assignments stay balanced. Its score survives for the end-of-match board.
func (m *Match) RemovePlayer(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(playerID)
}

func (m *Match) removeLocked(playerID string) {
	for team, members := range m.teams {
		for i, id := range members {
			if id == playerID {
				m.teams[team] = append(members[:i], members[i+1:]...)
				return
			}
		}
	}
}

// AddScore updates the individual score and, in team modes, the team
// aggregate. Negative deltas are applied as given; no clamping.
func (m *Match) AddScore(playerID string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scores[playerID] += delta
	if team := m.teamOfLocked(playerID); team != protocol.TeamNone {
		m.teamScores[team] += delta
	}
}

// Scores returns a copy of the per-participant score map.
func (m *Match) Scores() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.scores))
	for id, s := range m.scores {
		out[id] = s
	}
	return out
}

// TeamScores returns a copy of the per-team score map.
func (m *Match) TeamScores() map[protocol.Team]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[protocol.Team]int, len(m.teamScores))
	for team, s := range m.teamScores {
		out[team] = s
	}
	return out
}

// FlagState returns a copy of one flag's state.
func (m *Match) FlagState(team protocol.Team) (Flag, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flags[team]
	if !ok {
		return Flag{}, false
	}
	return *f, true
}

// PickupFlag marks the given team's flag as carried.
func (m *Match) PickupFlag(team protocol.Team, carrier string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.flags[team]; ok {
		f.Carrier = carrier
		f.AtBase = false
	}
}

// DropFlag leaves the flag at the reported position, eligible for pickup.
func (m *Match) DropFlag(team protocol.Team, position protocol.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.flags[team]; ok {
		f.Carrier = ""
		f.AtBase = false
		f.Position = position
	}
}

// ReturnFlag sends the flag back to its base.
func (m *Match) ReturnFlag(team protocol.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.flags[team]; ok {
		f.Carrier = ""
		f.AtBase = true
		f.Position = f.Home
	}
}

// CaptureFlag returns the captured flag home and credits the capturing
// player's team. Reports the winner exactly once when the capture threshold
// is reached. Whether the capturer's own flag must be at base is not
// checked here; see the repository design notes.
func (m *Match) CaptureFlag(byPlayer string, flagTeam protocol.Team) (winner protocol.Team, won bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.flags[flagTeam]; ok {
		f.Carrier = ""
		f.AtBase = true
		f.Position = f.Home
	}

	team := m.teamOfLocked(byPlayer)
	if team == protocol.TeamNone {
		return protocol.TeamNone, false
	}
	m.teamScores[team]++

	if !m.ended && m.teamScores[team] >= netconfig.CaptureWinThreshold {
		m.ended = true
		m.winner = team
		return team, true
	}
	return protocol.TeamNone, false
}

// End records an externally announced result. Returns false if the match
// had already ended, so the result is surfaced at most once per replica.
func (m *Match) End(winner protocol.Team) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return false
	}
	m.ended = true
	m.winner = winner
	return true
}

// Winner reports the winning team once the match has ended.
func (m *Match) Winner() (protocol.Team, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.winner, m.ended
}

// SpawnPoint computes a respawn position: the team base in team modes, a
// randomized arena point otherwise.
func (m *Match) SpawnPoint(playerID string) protocol.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()

	span := func(s float64) float64 { return m.rng.Float64()*s - s/2 }

	switch m.teamOfLocked(playerID) {
	case protocol.TeamRed:
		return protocol.Vec3{X: -baseSpawnX, Y: spawnHeight, Z: span(baseSpawnSpan)}
	case protocol.TeamBlue:
		return protocol.Vec3{X: baseSpawnX, Y: spawnHeight, Z: span(baseSpawnSpan)}
	default:
		return protocol.Vec3{X: span(arenaSpan), Y: spawnHeight, Z: span(arenaSpan)}
	}
}
