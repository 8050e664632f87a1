package codec

type ActionCtl int

const (
	ActionStatus ActionCtl = iota
	ActionList
	ActionRegister
	ActionUnregister
	ActionCheckin
	ActionReload
	ActionShutdown
	ActionHistory
)

var ActionResponse = map[ActionCtl]string{
	ActionStatus:     "Check supervisor status successfully",
	ActionList:       "List critical components successfully",
	ActionRegister:   "Register critical component successfully",
	ActionUnregister: "Unregister critical component successfully",
	ActionCheckin:    "Checkin successfully",
	ActionReload:     "Reload configuration successfully",
	ActionHistory:    "List reboot causes successfully",
}

type ActionMsg struct {
	Action    ActionCtl `cbor:""`
	ID        uint64    `cbor:",omitempty"`
	Name      string    `cbor:",omitempty"`
	TimeoutMs int64     `cbor:",omitempty"`
}
