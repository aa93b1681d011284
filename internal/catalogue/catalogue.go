// Package catalogue holds the static checkpoint list of a hunt: clue text,
// lifeline hint and the password that unlocks the next stage.
package catalogue

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NoClue is returned for checkpoint indexes outside the catalogue.
const NoClue = "No clue available."

// NoLifeline is returned for checkpoint indexes outside the catalogue.
var NoLifeline = LifelineHint{Coordinates: "N/A", Briefing: "No lifeline available."}

// Gate is a narrative stop shown before a checkpoint's clue. The player must
// acknowledge it before the clue is revealed.
type Gate string

const (
	GateNone           Gate = ""
	GateHandlerMessage Gate = "handler_message"
	GateFinalClearance Gate = "final_clearance"
)

type LifelineHint struct {
	Coordinates string `yaml:"coordinates" json:"coordinates"`
	Briefing    string `yaml:"briefing" json:"briefing"`
}

type Checkpoint struct {
	Index    int          `yaml:"index"`
	Password string       `yaml:"password"`
	Clue     string       `yaml:"clue"`
	Lifeline LifelineHint `yaml:"lifeline"`
	Gate     Gate         `yaml:"gate"`

	// DesktopOnly is read by the presentation layer only.
	DesktopOnly bool `yaml:"desktop_only"`

	// LifelineLocked refuses lifeline requests on this checkpoint.
	LifelineLocked bool `yaml:"lifeline_locked"`
}

type file struct {
	Checkpoints []Checkpoint `yaml:"checkpoints"`
}

// Catalogue is immutable once loaded and safe for concurrent use.
type Catalogue struct {
	checkpoints []Checkpoint
}

//go:embed checkpoints.yaml
var defaultYAML []byte

// Default returns the built-in eight-checkpoint hunt.
func Default() *Catalogue {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalogue: embedded checkpoints.yaml: %v", err))
	}
	return c
}

// Load reads a catalogue file from disk.
func Load(path string) (*Catalogue, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(b []byte) (*Catalogue, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decoding catalogue: %w", err)
	}
	return New(f.Checkpoints)
}

// New validates checkpoints and orders them by index.
func New(checkpoints []Checkpoint) (*Catalogue, error) {
	cps := make([]Checkpoint, len(checkpoints))
	copy(cps, checkpoints)
	sort.Slice(cps, func(i, j int) bool { return cps[i].Index < cps[j].Index })

	if err := validate(cps); err != nil {
		return nil, err
	}
	for i := range cps {
		cps[i].Password = normalize(cps[i].Password)
		cps[i].Clue = strings.TrimRight(cps[i].Clue, "\n")
	}
	return &Catalogue{checkpoints: cps}, nil
}

func validate(cps []Checkpoint) error {
	if len(cps) == 0 {
		return errors.New("catalogue has no checkpoints")
	}
	for i, cp := range cps {
		if cp.Index != i {
			return fmt.Errorf("checkpoint indexes must run 0..%d without gaps, found %d at position %d", len(cps)-1, cp.Index, i)
		}
		if normalize(cp.Password) == "" {
			return fmt.Errorf("checkpoint %d: password is required", cp.Index)
		}
		switch cp.Gate {
		case GateNone, GateHandlerMessage, GateFinalClearance:
		default:
			return fmt.Errorf("checkpoint %d: unknown gate %q", cp.Index, cp.Gate)
		}
	}
	return nil
}

func (c *Catalogue) Len() int { return len(c.checkpoints) }

func (c *Catalogue) Checkpoint(i int) (Checkpoint, bool) {
	if i < 0 || i >= len(c.checkpoints) {
		return Checkpoint{}, false
	}
	return c.checkpoints[i], true
}

func (c *Catalogue) Clue(i int) string {
	cp, ok := c.Checkpoint(i)
	if !ok {
		return NoClue
	}
	return cp.Clue
}

func (c *Catalogue) Lifeline(i int) LifelineHint {
	cp, ok := c.Checkpoint(i)
	if !ok {
		return NoLifeline
	}
	return cp.Lifeline
}

// LifelineLocked reports whether checkpoint i refuses lifelines. Out-of-range
// indexes are locked.
func (c *Catalogue) LifelineLocked(i int) bool {
	cp, ok := c.Checkpoint(i)
	return !ok || cp.LifelineLocked
}

func (c *Catalogue) GateBefore(i int) Gate {
	cp, ok := c.Checkpoint(i)
	if !ok {
		return GateNone
	}
	return cp.Gate
}

// Password returns the normalized expected code for checkpoint i.
func (c *Catalogue) Password(i int) (string, bool) {
	cp, ok := c.Checkpoint(i)
	if !ok {
		return "", false
	}
	return cp.Password, true
}

// Matches reports whether raw unlocks checkpoint i. Out-of-range indexes
// never match.
func (c *Catalogue) Matches(i int, raw string) bool {
	want, ok := c.Password(i)
	if !ok {
		return false
	}
	return Normalize(raw) == want
}

// Normalize trims and upper-cases a submitted code.
func Normalize(raw string) string { return normalize(raw) }

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
