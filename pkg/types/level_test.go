package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestLevelOrdering(t *testing.T) {
	t.Parallel()
	order := []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}
	for i := 1; i < len(order); i++ {
		if !(order[i-1] < order[i]) {
			t.Errorf("%s should be lower than %s", order[i-1], order[i])
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"A1", LevelA1, false},
		{"a2", LevelA2, false},
		{" b1 ", LevelB1, false},
		{"C2", LevelC2, false},
		{"D1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelJSON(t *testing.T) {
	t.Parallel()
	p := LearnerProfile{UserID: "u1", Level: LevelB2}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back LearnerProfile
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Level != LevelB2 {
		t.Errorf("level = %v, want B2 (json %s)", back.Level, data)
	}
}

func TestClampUnit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ClampUnit(tt.in); got != tt.want {
			t.Errorf("ClampUnit(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTutorResponse_NilVietnameseSerialisesAsNull(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(TutorResponse{ResponseEn: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v, ok := raw["responseVi"]
	if !ok || v != nil {
		t.Errorf("responseVi = %v (present=%v), want explicit null", v, ok)
	}
}
