package orchestrator

// Event is one entry in a streamed turn. The stream carries exactly
// one SessionEvent first, any number of TokenEvents, then one
// terminal DoneEvent or ErrorEvent before the channel closes.
type Event interface {
	isEvent()
}

// SessionEvent announces the resolved session id.
type SessionEvent struct {
	SessionID string
}

// TokenEvent carries one text fragment.
type TokenEvent struct {
	Content string
}

// DoneEvent terminates a successful stream.
type DoneEvent struct{}

// ErrorEvent terminates a failed stream.
type ErrorEvent struct {
	Err error
}

func (SessionEvent) isEvent() {}
func (TokenEvent) isEvent()   {}
func (DoneEvent) isEvent()    {}
func (ErrorEvent) isEvent()   {}
