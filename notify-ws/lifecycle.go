package notifyws

import "fmt"

// State of a client session as the lifecycle handler sees it. Connecting is
// never persisted: a registry record exists exactly while a session is Open.
type State int

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Signal is a transport-reported lifecycle notification.
type Signal int

const (
	SignalConnect Signal = iota
	SignalDisconnect
)

func (s Signal) String() string {
	switch s {
	case SignalConnect:
		return "connect"
	case SignalDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Transition returns the state a session moves to on signal. Repeated
// signals leave the state unchanged, which is what makes duplicate
// connect/disconnect notifications harmless. A closed session stays closed.
func Transition(from State, signal Signal) State {
	switch {
	case from == Closed:
		return Closed
	case signal == SignalDisconnect:
		return Closed
	default:
		return Open
	}
}

// Apply is Transition plus whether the signal changed anything. Only a change
// touches the registry.
func Apply(from State, signal Signal) (State, bool) {
	to := Transition(from, signal)
	return to, to != from
}
