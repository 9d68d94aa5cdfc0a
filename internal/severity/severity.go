// Package severity defines the status levels shared by assessment, validation
// and recovery results.
package severity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is an ordered status. Higher is worse.
type Level int

// Levels, in increasing order of severity
const (
	OK Level = iota
	Info
	Warning
	Error
	Critical
)

var names = [...]string{"OK", "INFO", "WARNING", "ERROR", "CRITICAL"}

func (l Level) String() string {
	if l < OK || l > Critical {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return names[l]
}

// Parse converts a level name, case-insensitively.
func Parse(s string) (Level, error) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return Level(i), nil
		}
	}
	return OK, fmt.Errorf("unknown severity %q", s)
}

// MarshalJSON encodes the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Max returns the worst of levels; OK when none are given.
func Max(levels ...Level) Level {
	worst := OK
	for _, l := range levels {
		if l > worst {
			worst = l
		}
	}
	return worst
}

// Failing reports whether the level blocks success.
func (l Level) Failing() bool {
	return l >= Error
}

// Finding is one observation made by a check.
type Finding struct {
	Domain   string `json:"domain,omitempty"`
	Check    string `json:"check"`
	Severity Level  `json:"severity"`
	Message  string `json:"message"`
}

// Worst returns the highest severity among findings.
func Worst(findings []Finding) Level {
	worst := OK
	for _, f := range findings {
		if f.Severity > worst {
			worst = f.Severity
		}
	}
	return worst
}
