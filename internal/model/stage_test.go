package model_test

import (
	"errors"
	"testing"

	"github.com/iliyamo/scene-continuity/internal/model"
)

func TestStageLocksStartInDraft(t *testing.T) {
	locks := model.NewStageLocks()
	for _, s := range model.AllStages() {
		e := locks.Get(s)
		if e.Stage != s {
			t.Fatalf("entry for %d reports stage %d", s, e.Stage)
		}
		if e.Status != model.StageDraft || e.LockedAt != nil {
			t.Fatalf("stage %d: expected draft without timestamp, got %+v", s, e)
		}
	}
	if got := len(locks.ByNumber()); got != model.StageCount {
		t.Fatalf("expected %d entries, got %d", model.StageCount, got)
	}
}

func TestStageNumberBounds(t *testing.T) {
	cases := []struct {
		stage model.StageNumber
		valid bool
	}{
		{6, false},
		{7, true},
		{12, true},
		{13, false},
	}
	for _, tc := range cases {
		if got := tc.stage.Valid(); got != tc.valid {
			t.Fatalf("stage %d: Valid()=%v want %v", tc.stage, got, tc.valid)
		}
	}
	if _, ok := model.StageShotList.Predecessor(); ok {
		t.Fatal("stage 7 must not have a predecessor")
	}
	if p, ok := model.StageFrameGeneration.Predecessor(); !ok || p != model.StagePromptSegmentation {
		t.Fatalf("stage 10 predecessor = %d,%v", p, ok)
	}
}

func TestParseStage(t *testing.T) {
	s, err := model.ParseStage(" 9 ")
	if err != nil || s != model.StagePromptSegmentation {
		t.Fatalf("ParseStage failed: %v %d", err, s)
	}
	if _, err := model.ParseStage("nine"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind model.ErrorKind
	}{
		{model.NotFound("scene", "s1"), model.ErrorKindNotFound},
		{model.Invariant(model.CodeTemporalParadox, "x"), model.ErrorKindValidation},
		{&model.UpstreamError{Service: "describer", Err: errors.New("boom")}, model.ErrorKindUpstream},
		{errors.New("disk"), model.ErrorKindInternal},
	}
	for _, tc := range cases {
		if got := model.KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v)=%s want %s", tc.err, got, tc.kind)
		}
	}

	var inv *model.InvariantError
	wrapped := errors.Join(errors.New("ctx"), model.Invariant(model.CodeStageNotLocked, "stage 8"))
	if !errors.As(wrapped, &inv) || inv.Code != model.CodeStageNotLocked {
		t.Fatalf("expected invariant error through wrapping, got %v", wrapped)
	}
}
