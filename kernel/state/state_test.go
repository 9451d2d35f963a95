package state

import (
	"testing"
	"time"
)

func TestNew_DefaultsAreCopied(t *testing.T) {
	defaults := map[string]any{"mode": "explore"}
	st := New("ps-1", "default", "explore", defaults, time.Now())
	st.SetVariable("mode", "implement")
	if defaults["mode"] != "explore" {
		t.Fatal("expected definition defaults to be unaffected by state mutation")
	}
	if st.Step != "explore" {
		t.Fatalf("unexpected initial step %q", st.Step)
	}
}

func TestClone_IsDeep(t *testing.T) {
	st := New("ps-1", "default", "explore", nil, time.Now())
	st.SetVariable("nested", map[string]any{"k": "v"})
	st.Observe(Observation{ID: "o1", Kind: "note", Data: map[string]any{"a": 1}})

	cp := st.Clone()
	cp.Variables["nested"].(map[string]any)["k"] = "changed"
	cp.Observations[0].Data["a"] = 2

	if st.Variables["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("expected clone variable mutation to not alias original")
	}
	if st.Observations[0].Data["a"] != 1 {
		t.Fatal("expected clone observation mutation to not alias original")
	}
}

func TestEnterStep_ResetsTurnCounter(t *testing.T) {
	st := New("ps-1", "default", "explore", nil, time.Now())
	st.TurnsInStep = 4
	at := time.Now()
	st.EnterStep("implement", at)
	if st.Step != "implement" || st.TurnsInStep != 0 {
		t.Fatalf("unexpected state after transition: step=%q turns=%d", st.Step, st.TurnsInStep)
	}
	if !st.StepEnteredAt.Equal(at) {
		t.Fatal("expected step_entered_at to be updated")
	}
}

func TestVariable_MissingIsAbsent(t *testing.T) {
	st := New("ps-1", "default", "explore", nil, time.Now())
	if _, ok := st.Variable("never_set"); ok {
		t.Fatal("expected missing variable to report absent")
	}
}
