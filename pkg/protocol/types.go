package protocol

// Message types carried on the live feed.
const (
	TypeHello   = "hello"
	TypeError   = "error"
	TypeView    = "view"
	TypeSession = "session"
)
