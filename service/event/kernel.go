package event

// Lifecycle event types
const (
	TypeCreated  = "created"
	TypeAdmitted = "admitted"
	TypeState    = "state"
	TypeKilled   = "killed"
)

// Switch event types
const (
	TypePreempt = "preempt"
	TypeYield   = "yield"
)

// Lifecycle is the payload of process lifecycle events
type Lifecycle struct {
	PID    uint64  `json:"pid"`
	Parent *uint64 `json:"parent,omitempty"`
	Name   string  `json:"name,omitempty"`
	From   string  `json:"from,omitempty"`
	To     string  `json:"to"`
}

// Switch is the payload of context switch events
type Switch struct {
	From     uint64 `json:"from"`
	HasFrom  bool   `json:"hasFrom"`
	To       uint64 `json:"to"`
	Tick     uint64 `json:"tick"`
	RootSwap bool   `json:"rootSwap"`
}
