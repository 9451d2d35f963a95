package condition

import (
	"log/slog"
	"reflect"
	"regexp"
	"time"

	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/state"
)

// Input is the (state, event) pair a condition is evaluated against.
type Input struct {
	State *state.WorkflowState
	Event *hookevent.Event
	Now   time.Time
}

// PredicateFunc is one registered built-in predicate. It must be total:
// malformed arguments evaluate false.
type PredicateFunc func(in Input, args map[string]any) bool

// Evaluator resolves condition trees against live input. Constructed once at
// startup; safe for concurrent use after registration is done.
type Evaluator struct {
	predicates map[string]PredicateFunc
	log        *slog.Logger
}

// NewEvaluator returns an evaluator with the built-in predicate set.
func NewEvaluator(log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	e := &Evaluator{predicates: map[string]PredicateFunc{}, log: log}
	registerBuiltins(e)
	return e
}

// Register adds one predicate. Later registrations with the same name win,
// so plugins may override built-ins deliberately.
func (e *Evaluator) Register(name string, fn PredicateFunc) {
	if name == "" || fn == nil {
		return
	}
	e.predicates[name] = fn
}

// Evaluate returns the boolean value of one condition. An empty condition
// is true. Unknown predicate names evaluate false with a warning.
func (e *Evaluator) Evaluate(c *Condition, in Input) bool {
	if c.IsEmpty() {
		return true
	}
	if len(c.All) > 0 {
		for i := range c.All {
			if !e.Evaluate(&c.All[i], in) {
				return false
			}
		}
		return true
	}
	if len(c.Any) > 0 {
		for i := range c.Any {
			if e.Evaluate(&c.Any[i], in) {
				return true
			}
		}
		return false
	}
	if c.Not != nil {
		return !e.Evaluate(c.Not, in)
	}
	if c.Var != nil {
		return evalVar(c.Var, in)
	}
	if c.Event != nil {
		return evalEvent(c.Event, in)
	}
	if c.Predicate != nil {
		fn, ok := e.predicates[c.Predicate.Name]
		if !ok {
			e.log.Warn("unknown condition predicate", "predicate", c.Predicate.Name)
			return false
		}
		return fn(in, c.Predicate.Args)
	}
	return false
}

func evalVar(test *VarTest, in Input) bool {
	value, ok := in.State.Variable(test.Name)
	if test.Exists != nil {
		return ok == *test.Exists
	}
	if !ok {
		return false
	}
	switch {
	case test.Equals != nil:
		return looseEqual(value, test.Equals)
	case test.GT != nil:
		n, numeric := toFloat(value)
		return numeric && n > *test.GT
	case test.LT != nil:
		n, numeric := toFloat(value)
		return numeric && n < *test.LT
	case len(test.In) > 0:
		for _, candidate := range test.In {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	}
	return truthy(value)
}

func evalEvent(test *EventTest, in Input) bool {
	if in.Event == nil || in.Event.Data == nil {
		return false
	}
	value, ok := in.Event.Data[test.Field]
	if !ok {
		return false
	}
	switch {
	case test.Equals != nil:
		return looseEqual(value, test.Equals)
	case len(test.In) > 0:
		for _, candidate := range test.In {
			if looseEqual(value, candidate) {
				return true
			}
		}
		return false
	case test.Matches != "":
		s, isString := value.(string)
		if !isString {
			return false
		}
		re := test.re
		if re == nil {
			// Uncompiled trees occur only when a caller skipped Compile;
			// fall back to compiling here rather than failing closed forever.
			var err error
			re, err = regexp.Compile(test.Matches)
			if err != nil {
				return false
			}
		}
		return re.MatchString(s)
	}
	return truthy(value)
}

// looseEqual compares across the yaml/json numeric type split
// (int vs int64 vs float64) before falling back to deep equality.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int, int32, int64, float32, float64:
		n, _ := toFloat(t)
		return n != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
