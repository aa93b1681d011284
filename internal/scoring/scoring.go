// Package scoring turns checkpoint timings and penalty counts into points
// and an agent rank. Every function is total: out-of-range inputs clamp.
package scoring

import "time"

const (
	ParTime      = 7 * time.Minute
	OvertimeTime = 10 * time.Minute

	ParScore      = 10
	OvertimeScore = 7
	LateScore     = 4

	LifelinePenalty       = 3
	InvalidAttemptPenalty = 2

	CompletionBonus  = 10
	NoLifelineBonus  = 10
	PerfectCodeBonus = 5
)

// ScoreForDuration awards 10 points at or under par (7 min), 7 up to
// 10 min, and 4 beyond. Negative durations count as zero.
func ScoreForDuration(d time.Duration) int {
	switch {
	case d <= ParTime:
		return ParScore
	case d <= OvertimeTime:
		return OvertimeScore
	default:
		return LateScore
	}
}

// CheckpointNetScore deducts penalties from a time score, floored at zero.
func CheckpointNetScore(timeScore, lifelines, invalids int) int {
	lifelines = max(lifelines, 0)
	invalids = max(invalids, 0)
	return max(0, timeScore-LifelinePenalty*lifelines-InvalidAttemptPenalty*invalids)
}

// Breakdown is the scored outcome of a single checkpoint.
type Breakdown struct {
	Duration              time.Duration `json:"durationNs"`
	DurationSeconds       int           `json:"durationSeconds"`
	TimeScore             int           `json:"timeScore"`
	LifelinePenalty       int           `json:"lifelinePenalty"`
	InvalidAttemptPenalty int           `json:"invalidAttemptPenalty"`
	NetScore              int           `json:"netScore"`
}

// Checkpoint scores one solved checkpoint. The time tier is judged on whole
// elapsed seconds, the same figure the ledger records.
func Checkpoint(d time.Duration, lifelines, invalids int) Breakdown {
	d = max(d, 0)
	lifelines = max(lifelines, 0)
	invalids = max(invalids, 0)
	ts := ScoreForDuration(d.Truncate(time.Second))
	return Breakdown{
		Duration:              d,
		DurationSeconds:       int(d / time.Second),
		TimeScore:             ts,
		LifelinePenalty:       LifelinePenalty * lifelines,
		InvalidAttemptPenalty: InvalidAttemptPenalty * invalids,
		NetScore:              CheckpointNetScore(ts, lifelines, invalids),
	}
}

type FinalScore struct {
	Total            int  `json:"totalScore"`
	CheckpointScore  int  `json:"checkpointScore"`
	CompletionBonus  int  `json:"completionBonus"`
	NoLifelineBonus  int  `json:"noLifelineBonus"`
	PerfectCodeBonus int  `json:"perfectCodeBonus"`
	LifelinesUsed    int  `json:"totalLifelinesUsed"`
	InvalidAttempts  int  `json:"totalInvalidAttempts"`
	Completed        bool `json:"completed"`
	Rank             Rank `json:"agentRank"`
}

// Final adds the hunt-wide bonuses to the sum of checkpoint net scores:
// +10 for finishing, +10 if no lifeline was ever used, +5 if no code was
// ever wrong. The total is floored at zero.
func Final(sumOfNet, lifelines, invalids int, completed bool) FinalScore {
	f := FinalScore{
		CheckpointScore: sumOfNet,
		LifelinesUsed:   max(lifelines, 0),
		InvalidAttempts: max(invalids, 0),
		Completed:       completed,
	}
	if completed {
		f.CompletionBonus = CompletionBonus
	}
	if f.LifelinesUsed == 0 {
		f.NoLifelineBonus = NoLifelineBonus
	}
	if f.InvalidAttempts == 0 {
		f.PerfectCodeBonus = PerfectCodeBonus
	}
	f.Total = max(0, sumOfNet+f.CompletionBonus+f.NoLifelineBonus+f.PerfectCodeBonus)
	f.Rank = RankFor(f.Total)
	return f
}

type Rank struct {
	Title string `json:"title"`
	Color string `json:"color"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// Ranks partition 0..100, best first.
var Ranks = []Rank{
	{Min: 95, Max: 100, Title: "The Spy Who Scored Me", Color: "#FFD700"},
	{Min: 80, Max: 94, Title: "Undercover Overachiever", Color: "#C0C0C0"},
	{Min: 65, Max: 79, Title: "Secret Agent...ish", Color: "#CD7F32"},
	{Min: 45, Max: 64, Title: "Agent Almost-There", Color: "#87CEEB"},
	{Min: 0, Max: 44, Title: "Operation: Whoopsie", Color: "#FF6B6B"},
}

// RankFor clamps score into 0..100 and returns its tier.
func RankFor(score int) Rank {
	score = min(max(score, 0), 100)
	for _, r := range Ranks {
		if score >= r.Min && score <= r.Max {
			return r
		}
	}
	return Ranks[len(Ranks)-1]
}
