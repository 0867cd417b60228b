package pipeline

// State is the lifecycle state of a single run.
type State string

// Run states.
const (
	StateReceived  State = "received"
	StateRanked    State = "ranked"
	StateReranked  State = "reranked"
	StateEvaluated State = "evaluated"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Progress categories reported with each transition.
const (
	CategoryRanking    = "ranking"
	CategoryReranking  = "reranking"
	CategoryEvaluation = "evaluation"
	CategoryLifecycle  = "lifecycle"
)

// transition describes where a state may lead and which category reports entering it.
type transition struct {
	Category string
	Next     []State
}

// transitions is the allowed state graph. Every non-terminal state may fail.
var transitions = map[State]transition{
	StateReceived:  {Category: CategoryLifecycle, Next: []State{StateRanked, StateFailed}},
	StateRanked:    {Category: CategoryRanking, Next: []State{StateReranked, StateFailed}},
	StateReranked:  {Category: CategoryReranking, Next: []State{StateEvaluated, StateDone, StateFailed}},
	StateEvaluated: {Category: CategoryEvaluation, Next: []State{StateDone, StateFailed}},
	StateDone:      {Category: CategoryLifecycle},
	StateFailed:    {Category: CategoryLifecycle},
}

// CanTransition reports whether a run in s may move to next.
func (s State) CanTransition(next State) bool {
	t, ok := transitions[s]
	if !ok {
		return false
	}
	for _, n := range t.Next {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Category returns the progress category reported when a run enters s.
func (s State) Category() string {
	return transitions[s].Category
}

func (s State) String() string {
	return string(s)
}
