package router

type State string

const (
	StateReceived      State = "RECEIVED"
	StateDedupCheck    State = "DEDUP_CHECK"
	StateDropped       State = "DROPPED"
	StateClassifying   State = "CLASSIFYING"
	StateFetchingMedia State = "FETCHING_MEDIA"
	StateAnalyzing     State = "ANALYZING"
	StateFormatting    State = "FORMATTING"
	StateReplied       State = "REPLIED"
	StateDone          State = "DONE"
)

// StateObserver is notified of every transition of every event. It is called
// from pipeline goroutines and must be safe for concurrent use.
type StateObserver func(eventID string, state State)
