package game

import (
	"fmt"
	"math"
	"testing"

	"github.com/hollowpoint/doomgate-mp/shared/netconfig"
	"github.com/hollowpoint/doomgate-mp/shared/protocol"
)

func TestAssignTeamBalances(t *testing.T) {
	m := NewMatch(protocol.ModeTeamDeathmatch)

	counts := map[protocol.Team]int{}
	for i := 0; i < 5; i++ {
		team := m.AssignTeam(fmt.Sprintf("p%d", i))
		if team != protocol.TeamRed && team != protocol.TeamBlue {
			t.Fatalf("assigned team %q", team)
		}
		counts[team]++
	}

	if diff := counts[protocol.TeamRed] - counts[protocol.TeamBlue]; diff < -1 || diff > 1 {
		t.Fatalf("team sizes %v differ by more than one", counts)
	}
	// Ties break toward red, so the first assignment is always red.
	if m.TeamOf("p0") != protocol.TeamRed {
		t.Fatalf("first player on %s, want red", m.TeamOf("p0"))
	}
}

func TestAssignTeamIdempotent(t *testing.T) {
	m := NewMatch(protocol.ModeCaptureTheFlag)

	first := m.AssignTeam("p1")
	m.AssignTeam("p2")
	if again := m.AssignTeam("p1"); again != first {
		t.Fatalf("reassignment moved p1 from %s to %s", first, again)
	}
}

func TestAssignTeamOutsideTeamModes(t *testing.T) {
	m := NewMatch(protocol.ModeDeathmatch)
	if team := m.AssignTeam("p1"); team != protocol.TeamNone {
		t.Fatalf("deathmatch assignment = %q, want none", team)
	}
}

func TestSetTeamMovesPlayer(t *testing.T) {
	m := NewMatch(protocol.ModeTeamDeathmatch)
	m.AssignTeam("p1") // red

	m.SetTeam("p1", protocol.TeamBlue)
	if m.TeamOf("p1") != protocol.TeamBlue {
		t.Fatalf("team = %s, want blue", m.TeamOf("p1"))
	}

	// Later assignments see the corrected balance.
	if team := m.AssignTeam("p2"); team != protocol.TeamRed {
		t.Fatalf("next assignment = %s, want red", team)
	}
}

func TestRemovePlayerRebalances(t *testing.T) {
	m := NewMatch(protocol.ModeTeamDeathmatch)
	m.AssignTeam("p1") // red
	m.AssignTeam("p2") // blue
	m.AssignTeam("p3") // red

	m.RemovePlayer("p1")
	if team := m.AssignTeam("p4"); team != protocol.TeamRed {
		t.Fatalf("assignment after removal = %s, want red", team)
	}
}

func TestScoring(t *testing.T) {
	m := NewMatch(protocol.ModeTeamDeathmatch)
	m.AssignTeam("p1") // red
	m.AssignTeam("p2") // blue

	m.AddScore("p1", 1)
	m.AddScore("p1", 1)
	m.AddScore("p2", -1) // suicide penalty, no clamping

	scores := m.Scores()
	if scores["p1"] != 2 || scores["p2"] != -1 {
		t.Fatalf("scores = %v", scores)
	}
	teamScores := m.TeamScores()
	if teamScores[protocol.TeamRed] != 2 || teamScores[protocol.TeamBlue] != -1 {
		t.Fatalf("team scores = %v", teamScores)
	}
}

func TestScoreForUnassignedPlayer(t *testing.T) {
	m := NewMatch(protocol.ModeDeathmatch)
	m.AddScore("p1", 1)

	if m.Scores()["p1"] != 1 {
		t.Fatalf("scores = %v", m.Scores())
	}
	if ts := m.TeamScores(); ts[protocol.TeamRed] != 0 || ts[protocol.TeamBlue] != 0 {
		t.Fatalf("team scores = %v", ts)
	}
}

func TestFlagLifecycle(t *testing.T) {
	m := NewMatch(protocol.ModeCaptureTheFlag)

	f, ok := m.FlagState(protocol.TeamRed)
	if !ok || !f.AtBase || f.Carrier != "" {
		t.Fatalf("initial flag = %+v", f)
	}

	m.PickupFlag(protocol.TeamRed, "p2")
	f, _ = m.FlagState(protocol.TeamRed)
	if f.AtBase || f.Carrier != "p2" {
		t.Fatalf("after pickup = %+v", f)
	}

	dropAt := protocol.Vec3{X: 12, Y: 0, Z: -3}
	m.DropFlag(protocol.TeamRed, dropAt)
	f, _ = m.FlagState(protocol.TeamRed)
	if f.AtBase || f.Carrier != "" || f.Position != dropAt {
		t.Fatalf("after drop = %+v", f)
	}

	// A dropped flag can be picked up again.
	m.PickupFlag(protocol.TeamRed, "p3")
	f, _ = m.FlagState(protocol.TeamRed)
	if f.Carrier != "p3" {
		t.Fatalf("after re-pickup = %+v", f)
	}

	m.ReturnFlag(protocol.TeamRed)
	f, _ = m.FlagState(protocol.TeamRed)
	if !f.AtBase || f.Carrier != "" || f.Position != f.Home {
		t.Fatalf("after return = %+v", f)
	}
}

func TestCaptureScoresAndWinsOnce(t *testing.T) {
	m := NewMatch(protocol.ModeCaptureTheFlag)
	m.AssignTeam("p1") // red
	m.AssignTeam("p2") // blue

	for i := 1; i < netconfig.CaptureWinThreshold; i++ {
		winner, won := m.CaptureFlag("p1", protocol.TeamBlue)
		if won || winner != protocol.TeamNone {
			t.Fatalf("capture %d reported win", i)
		}
	}

	winner, won := m.CaptureFlag("p1", protocol.TeamBlue)
	if !won || winner != protocol.TeamRed {
		t.Fatalf("final capture = (%s, %v)", winner, won)
	}
	if got, ended := m.Winner(); !ended || got != protocol.TeamRed {
		t.Fatalf("winner = (%s, %v)", got, ended)
	}

	// Further captures keep scoring but never re-announce the win.
	if _, won := m.CaptureFlag("p1", protocol.TeamBlue); won {
		t.Fatal("win announced twice")
	}

	if ts := m.TeamScores(); ts[protocol.TeamRed] != netconfig.CaptureWinThreshold+1 {
		t.Fatalf("red team score = %d", ts[protocol.TeamRed])
	}
}

func TestCaptureByUnassignedPlayer(t *testing.T) {
	m := NewMatch(protocol.ModeCaptureTheFlag)
	m.PickupFlag(protocol.TeamBlue, "ghost")

	winner, won := m.CaptureFlag("ghost", protocol.TeamBlue)
	if won || winner != protocol.TeamNone {
		t.Fatal("unassigned capture scored a win")
	}
	// The flag still goes home.
	if f, _ := m.FlagState(protocol.TeamBlue); !f.AtBase {
		t.Fatalf("flag = %+v", f)
	}
}

func TestEndAnnouncesOnce(t *testing.T) {
	m := NewMatch(protocol.ModeTeamDeathmatch)

	if !m.End(protocol.TeamBlue) {
		t.Fatal("first End rejected")
	}
	if m.End(protocol.TeamRed) {
		t.Fatal("second End accepted")
	}
	if winner, ended := m.Winner(); !ended || winner != protocol.TeamBlue {
		t.Fatalf("winner = (%s, %v)", winner, ended)
	}
}

func TestResetKeepsTeams(t *testing.T) {
	m := NewMatch(protocol.ModeCaptureTheFlag)
	m.AssignTeam("p1")
	m.AddScore("p1", 5)
	m.PickupFlag(protocol.TeamBlue, "p1")
	m.End(protocol.TeamRed)

	m.Reset()

	if m.TeamOf("p1") != protocol.TeamRed {
		t.Fatal("reset cleared team assignment")
	}
	if len(m.Scores()) != 0 {
		t.Fatalf("scores survived reset: %v", m.Scores())
	}
	if f, _ := m.FlagState(protocol.TeamBlue); !f.AtBase {
		t.Fatalf("flag not home after reset: %+v", f)
	}
	if _, ended := m.Winner(); ended {
		t.Fatal("match still ended after reset")
	}
}

func TestSpawnPoints(t *testing.T) {
	m := NewMatch(protocol.ModeCaptureTheFlag)
	m.AssignTeam("p1") // red
	m.AssignTeam("p2") // blue

	for i := 0; i < 50; i++ {
		red := m.SpawnPoint("p1")
		if red.X != -baseSpawnX || red.Y != spawnHeight || math.Abs(red.Z) > baseSpawnSpan/2 {
			t.Fatalf("red spawn = %+v", red)
		}
		blue := m.SpawnPoint("p2")
		if blue.X != baseSpawnX || math.Abs(blue.Z) > baseSpawnSpan/2 {
			t.Fatalf("blue spawn = %+v", blue)
		}
	}

	dm := NewMatch(protocol.ModeDeathmatch)
	for i := 0; i < 50; i++ {
		p := dm.SpawnPoint("p1")
		if math.Abs(p.X) > arenaSpan/2 || math.Abs(p.Z) > arenaSpan/2 || p.Y != spawnHeight {
			t.Fatalf("deathmatch spawn = %+v", p)
		}
	}
}
