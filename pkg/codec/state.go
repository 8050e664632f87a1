package codec

type SupervisorState string

const (
	StateDisabled  SupervisorState = "Disabled"
	StateArmed     SupervisorState = "Armed"
	StateTimedOut  SupervisorState = "TimedOut"
	StateEscalated SupervisorState = "Escalated"
)
