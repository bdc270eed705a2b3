package api

import "encoding/json"

// Action names the domus operation carried by an Envelope.
type Action string

const (
	ActionMakePost            Action = "MakePost"
	ActionDeletePost          Action = "DeletePost"
	ActionGetPost             Action = "GetPost"
	ActionGetPosts            Action = "GetPosts"
	ActionGetStream           Action = "GetStream"
	ActionGetTakesForPost     Action = "GetTakesForPost"
	ActionTakePost            Action = "TakePost"
	ActionTakeRingPost        Action = "TakeRingPost"
	ActionInfoRequest         Action = "InfoRequest"
	ActionGetWaitingPostCount Action = "GetWaitingPostCount"
	ActionSetWaitingPostCount Action = "SetWaitingPostCount"
)

// Envelope is the wire frame sent to the domus proxy.
type Envelope struct {
	Action  Action `json:"action"`
	Payload any    `json:"payload"`
}

// Reply is the wire frame returned by the domus proxy.
type Reply struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
