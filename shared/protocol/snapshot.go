package protocol

// Mode identifies a multiplayer game mode.
type Mode string

const (
	ModeDeathmatch     Mode = "deathmatch"
	ModeTeamDeathmatch Mode = "team_deathmatch"
	ModeCaptureTheFlag Mode = "ctf"
	ModeCoopCampaign   Mode = "coop"
)

// TeamMode reports whether the mode uses team assignment and team scores.
func (m Mode) TeamMode() bool {
	return m == ModeTeamDeathmatch || m == ModeCaptureTheFlag
}

// Team identifies a team in team-based modes. The zero value means no team.
type Team string

const (
	TeamNone Team = ""
	TeamRed  Team = "red"
	TeamBlue Team = "blue"
)

// Vec3 is a position or velocity in world space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Lerp returns the linear interpolation between v and w at t in [0, 1].
func (v Vec3) Lerp(w Vec3, t float64) Vec3 {
	return Vec3{
		X: v.X + (w.X-v.X)*t,
		Y: v.Y + (w.Y-v.Y)*t,
		Z: v.Z + (w.Z-v.Z)*t,
	}
}

// EntitySnapshot is one timestamped state sample for a synchronized entity.
// Snapshots are immutable once created; only the per-entity buffer holding
// them is mutated.
type EntitySnapshot struct {
	Position  Vec3    `json:"position"`
	Yaw       float64 `json:"yaw"`
	Velocity  Vec3    `json:"velocity"`
	Health    float64 `json:"health"`
	Armor     float64 `json:"armor"`
	Weapon    string  `json:"weapon"`
	Team      Team    `json:"team,omitempty"`
	Timestamp int64   `json:"timestamp"` // sender clock, Unix ms
}
