package game

import (
	"github.com/playperu/agenthunt/internal/catalogue"
	"github.com/playperu/agenthunt/internal/hunt"
	"github.com/playperu/agenthunt/internal/scoring"
)

// View is what a client renders. It never carries passwords.
type View struct {
	SessionID          string         `json:"sessionId"`
	Revision           int64          `json:"revision"`
	Phase              hunt.Phase     `json:"phase"`
	Gate               catalogue.Gate `json:"gate,omitempty"`
	CurrentCheckpoint  int            `json:"currentCheckpoint"`
	TotalCheckpoints   int            `json:"totalCheckpoints"`
	LifelinesRemaining int            `json:"lifelinesRemaining"`
	EnteredCodes       []string       `json:"enteredCodes"`

	Clue           string                  `json:"clue"`
	Hint           *catalogue.LifelineHint `json:"hint,omitempty"`
	DesktopOnly    bool                    `json:"desktopOnly"`
	LifelineLocked bool                    `json:"lifelineLocked"`

	TotalScore           int       `json:"totalScore"`
	CheckpointScores     []int     `json:"checkpointScores"`
	CheckpointTimes      []float64 `json:"checkpointTimes"`
	TotalLifelinesUsed   int       `json:"totalLifelinesUsed"`
	TotalInvalidAttempts int       `json:"totalInvalidAttempts"`
	IsGameComplete       bool      `json:"isGameComplete"`

	GameElapsedSeconds       int `json:"gameElapsedSeconds"`
	CheckpointElapsedSeconds int `json:"checkpointElapsedSeconds"`

	// ResumeAvailable is set when the session has progress a returning
	// player can pick up.
	ResumeAvailable bool                `json:"resumeAvailable"`
	Notifications   []hunt.Notification `json:"notifications"`
}

// FinalResult is the final score with the stopped game clock.
type FinalResult struct {
	scoring.FinalScore
	ElapsedSeconds int `json:"elapsedSeconds"`
}

func (s *Service) view(m *hunt.Machine) View {
	st := m.State()
	game, cp := m.Elapsed()

	v := View{
		SessionID:                st.SessionID,
		Revision:                 st.Revision,
		Phase:                    st.Phase,
		Gate:                     st.Gate,
		CurrentCheckpoint:        st.CurrentCheckpoint,
		TotalCheckpoints:         st.TotalCheckpoints,
		LifelinesRemaining:       st.LifelinesRemaining,
		EnteredCodes:             nonNil(st.EnteredCodes),
		Clue:                     m.Clue(),
		TotalScore:               st.TotalScore,
		CheckpointScores:         nonNil(st.CheckpointScores),
		CheckpointTimes:          nonNil(st.CheckpointTimes),
		TotalLifelinesUsed:       st.TotalLifelinesUsed,
		TotalInvalidAttempts:     st.TotalInvalidAttempts,
		IsGameComplete:           st.IsGameComplete,
		GameElapsedSeconds:       int(game.Seconds()),
		CheckpointElapsedSeconds: int(cp.Seconds()),
		ResumeAvailable:          st.Phase != hunt.PhaseWelcome && !st.IsGameComplete,
		Notifications:            nonNil(m.Notifications().Active(s.now())),
	}
	if h, ok := m.RevealedHint(); ok {
		v.Hint = &h
	}
	if st.Phase == hunt.PhaseClue {
		if c, ok := s.cat.Checkpoint(st.CurrentCheckpoint); ok {
			v.DesktopOnly = c.DesktopOnly
			v.LifelineLocked = c.LifelineLocked
		}
	}
	return v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
