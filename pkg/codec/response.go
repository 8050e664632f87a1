package codec

type ResponseCtl int

const (
	ResponseNormal ResponseCtl = iota
	ResponseShutdown
	ResponseReload
	ResponseMsgErr
)

type ComponentInfo struct {
	ID             uint64 `json:"id"`
	Name           string `json:"name"`
	TimeoutMs      int64  `json:"timeout_ms"`
	SinceCheckinMs int64  `json:"since_checkin_ms"`
}

type StatusInfo struct {
	State             SupervisorState `json:"state"`
	Enabled           bool            `json:"enabled"`
	DevicePath        string          `json:"device_path"`
	PingIntervalMs    int64           `json:"ping_interval_ms"`
	TimedOutAt        int64           `json:"timed_out_at"`
	TimedOutComponent string          `json:"timed_out_component"`
	GraceRemainingMs  int64           `json:"grace_remaining_ms"`
	Registered        int             `json:"registered"`
}

type CauseInfo struct {
	At        int64  `json:"at"`
	Component string `json:"component"`
}

type ResponseMsg struct {
	Code       int              `json:"code"`
	Message    string           `json:"message"`
	ID         uint64           `json:"id,omitempty"`
	Status     *StatusInfo      `json:"status,omitempty"`
	Components []*ComponentInfo `json:"components,omitempty"`
	Causes     []*CauseInfo     `json:"causes,omitempty"`
}
