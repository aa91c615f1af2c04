package types

import (
	"fmt"
	"strings"
)

// Level is a CEFR proficiency level. The zero value is invalid; valid levels
// are ordered so that A1 < A2 < B1 < B2 < C1 < C2.
type Level int

const (
	LevelA1 Level = iota + 1
	LevelA2
	LevelB1
	LevelB2
	LevelC1
	LevelC2
)

var levelNames = [...]string{
	LevelA1: "A1",
	LevelA2: "A2",
	LevelB1: "B1",
	LevelB2: "B2",
	LevelC1: "C1",
	LevelC2: "C2",
}

// String returns the CEFR code ("A1" … "C2") or "unknown".
func (l Level) String() string {
	if !l.IsValid() {
		return "unknown"
	}
	return levelNames[l]
}

// IsValid reports whether l is one of the six CEFR levels.
func (l Level) IsValid() bool {
	return l >= LevelA1 && l <= LevelC2
}

// IsBeginner reports whether l is A1 or A2.
func (l Level) IsBeginner() bool {
	return l == LevelA1 || l == LevelA2
}

// ParseLevel converts a CEFR code such as "b2" into a [Level].
func ParseLevel(s string) (Level, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	for l := LevelA1; l <= LevelC2; l++ {
		if levelNames[l] == code {
			return l, nil
		}
	}
	return 0, fmt.Errorf("types: unknown CEFR level %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (l Level) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("types: cannot marshal invalid level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]. It is also picked up
// by the YAML decoder.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
