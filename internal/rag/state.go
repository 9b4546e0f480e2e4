package rag

// State is a step of the question-answering state machine.
//
//	RECEIVED -> CACHE_CHECK -> CACHE_HIT -> DONE
//	                        -> EMBEDDING -> SEARCHING -> NO_RESULTS -> DONE
//	                                                  -> CONTEXT_BUILT -> GENERATING -> CACHE_STORE -> DONE
//
// A failure while embedding, searching or generating moves to FAILED.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateCacheCheck   State = "CACHE_CHECK"
	StateCacheHit     State = "CACHE_HIT"
	StateEmbedding    State = "EMBEDDING"
	StateSearching    State = "SEARCHING"
	StateNoResults    State = "NO_RESULTS"
	StateContextBuilt State = "CONTEXT_BUILT"
	StateGenerating   State = "GENERATING"
	StateCacheStore   State = "CACHE_STORE"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Answers returned without calling the generator.
const (
	ApologyAnswer   = "Sorry, I couldn't process your query due to an error."
	NoResultsAnswer = "No relevant information found in the database for your query."
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateReceived:     {StateCacheCheck},
	StateCacheCheck:   {StateCacheHit, StateEmbedding},
	StateCacheHit:     {StateDone},
	StateEmbedding:    {StateSearching, StateFailed},
	StateSearching:    {StateNoResults, StateContextBuilt, StateFailed},
	StateNoResults:    {StateDone},
	StateContextBuilt: {StateGenerating, StateFailed},
	StateGenerating:   {StateCacheStore, StateFailed},
	StateCacheStore:   {StateDone},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends a query.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
