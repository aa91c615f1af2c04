package tutor

import "context"

// Stage is a step of one orchestration call.
type Stage int

// Stages in the order a call passes through them. StageError can follow any
// stage.
const (
	StageIdle Stage = iota
	StageTranscribing
	StageAnalyzing
	StageGenerating
	StageTranslating
	StageDone
	StageError
)

var stageNames = [...]string{
	StageIdle:         "idle",
	StageTranscribing: "transcribing",
	StageAnalyzing:    "analyzing",
	StageGenerating:   "generating",
	StageTranslating:  "translating",
	StageDone:         "done",
	StageError:        "error",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// StageObserver is notified of every stage transition. It runs synchronously
// on the calling goroutine and must not block.
type StageObserver func(ctx context.Context, from, to Stage)

// tracker walks one call through its stages.
type tracker struct {
	ctx      context.Context
	stage    Stage
	observer StageObserver
}

func (t *tracker) enter(next Stage) {
	if t.observer != nil && next != t.stage {
		t.observer(t.ctx, t.stage, next)
	}
	t.stage = next
}
