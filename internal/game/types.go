package game

import (
	"sort"
	"time"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const (
	MinPlayers       = 2
	MaxPlayers       = 8
	DefaultMaxRounds = 3
	MaxAnswerLength  = 500
)

// Room is one game instance. It is persisted as JSON with the field names below.
// RoundOpen is set by StartRound and cleared by JudgeRound, so a round is scored once.
type Room struct {
	ID               string                `json:"room_id"`
	Host             string                `json:"host"`
	Players          []string              `json:"players"`
	Status           Status                `json:"status"`
	Private          bool                  `json:"is_private"`
	CurrentRound     int                   `json:"current_round"`
	RoundOpen        bool                  `json:"round_open"`
	MaxRounds        int                   `json:"max_rounds"`
	CurrentMode      Mode                  `json:"current_mode"`
	CurrentChallenge string                `json:"current_challenge"`
	HiddenData       string                `json:"hidden_data"`
	Submissions      map[string]Submission `json:"submissions"`
	Scores           map[string]int        `json:"scores"`
	RoundResults     []RoundResult         `json:"round_results"`
	CreatedAt        time.Time             `json:"created_at"`

	seq int64
}

type Submission struct {
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
	// Seq is the acceptance order within the round.
	Seq int `json:"seq"`
}

type RoundResult struct {
	Round        int       `json:"round"`
	Mode         Mode      `json:"mode"`
	Challenge    string    `json:"challenge"`
	HiddenAnswer string    `json:"hidden_answer"`
	Rankings     []Ranking `json:"rankings"`
	AIReasoning  string    `json:"ai_reasoning"`
}

type Ranking struct {
	Player     string   `json:"player"`
	Answer     string   `json:"answer"`
	Difference *float64 `json:"difference,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Points     int      `json:"points"`
}

// RoundStart is returned by StartRound.
type RoundStart struct {
	Round     int    `json:"round"`
	Mode      Mode   `json:"mode"`
	Challenge string `json:"challenge"`
}

// Judgement is returned by JudgeRound.
type Judgement struct {
	Rankings     []Ranking `json:"rankings"`
	Reasoning    string    `json:"reasoning"`
	ActualAnswer string    `json:"actual_answer"`
	GameFinished bool      `json:"game_finished"`
}

type PublicRoom struct {
	RoomID  string `json:"room_id"`
	Players int    `json:"players"`
	Host    string `json:"host"`
}

type GameResults struct {
	Status       Status         `json:"status"`
	Scores       map[string]int `json:"scores"`
	RoundResults []RoundResult  `json:"round_results"`
}

type LeaderboardEntry struct {
	Player string `json:"player"`
	XP     int64  `json:"xp"`
}

// Public returns a copy safe to show players. The hidden value stays out of
// view until the open round has been judged.
func (r *Room) Public() *Room {
	out := *r
	if out.RoundOpen {
		out.HiddenData = ""
	}
	return &out
}

func (r *Room) hasPlayer(p string) bool {
	for _, x := range r.Players {
		if x == p {
			return true
		}
	}
	return false
}

// orderedSubmissions returns player ids in the order their answers were accepted.
func (r *Room) orderedSubmissions() []string {
	out := make([]string, 0, len(r.Submissions))
	for p := range r.Submissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return r.Submissions[out[i]].Seq < r.Submissions[out[j]].Seq
	})
	return out
}
