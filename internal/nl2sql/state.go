package nl2sql

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateGeneratingSQL
	StateExtractingSQL
	StateExecutingQuery
	StateGeneratingAnswer
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateUninitialized:    "uninitialized",
	StateReady:            "ready",
	StateGeneratingSQL:    "generating_sql",
	StateExtractingSQL:    "extracting_sql",
	StateExecutingQuery:   "executing_query",
	StateGeneratingAnswer: "generating_answer",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// stage is the work performed while in s, used to label stage timings.
func (s State) stage() (Stage, bool) {
	switch s {
	case StateReady:
		return StageSchema, true
	case StateGeneratingSQL:
		return StageGenerateSQL, true
	case StateExtractingSQL:
		return StageExtractSQL, true
	case StateExecutingQuery:
		return StageExecuteQuery, true
	case StateGeneratingAnswer:
		return StageGenerateAnswer, true
	default:
		return "", false
	}
}
