package transport

// ConnectionState is the coarse state reported by the transport.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseCause describes why a connection closed.
type CloseCause int

const (
	CauseUnknown CloseCause = iota
	CauseConnectionLost
	CauseReplaced
	CauseTimedOut
	CauseConnectFailed
	CauseLoggedOut
)

func (c CloseCause) String() string {
	switch c {
	case CauseConnectionLost:
		return "connection_lost"
	case CauseReplaced:
		return "replaced"
	case CauseTimedOut:
		return "timed_out"
	case CauseConnectFailed:
		return "connect_failed"
	case CauseLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the cause invalidates the stored credentials.
func (c CloseCause) Terminal() bool {
	return c == CauseLoggedOut
}

// ConnectionUpdate is emitted on every connection state change. Pairing carries
// a fresh pairing challenge while the session is unpaired.
type ConnectionUpdate struct {
	State   ConnectionState
	Cause   CloseCause
	Pairing string
	Err     error
}

// ParticipantsChanged is emitted when members join or leave a group.
type ParticipantsChanged struct {
	Conversation string
	Participants []string
	Action       ParticipantAction
}

// Handlers receives transport events. Nil fields are skipped.
type Handlers struct {
	ConnectionUpdate    func(ConnectionUpdate)
	CredentialsUpdate   func()
	Message             func(*Message)
	ParticipantsChanged func(ParticipantsChanged)
}
