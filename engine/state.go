package engine

// State names a step of a run.
type State string

const (
	StateReceiveQuery  State = "RECEIVE_QUERY"
	StateRetrieve      State = "RETRIEVE"
	StateComposeAnswer State = "COMPOSE_ANSWER"
	StateVerify        State = "VERIFY"
	StateRecordMemory  State = "RECORD_MEMORY"
	StateRespond       State = "RESPOND"
	StateAbort         State = "ABORT"
)

func (s State) terminal() bool {
	return s == StateRespond || s == StateAbort
}

// budgeted reports whether executing s consumes an iteration. Validating
// the query is free.
func (s State) budgeted() bool {
	return s != StateReceiveQuery && !s.terminal()
}
