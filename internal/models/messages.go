package models

// CaptureUpload is a finished raw capture pushed by a phone client on the
// capture topic. The service analyzes it exactly like a local session.
type CaptureUpload struct {
	UserID          string   `json:"userId"`
	SessionID       string   `json:"sessionId"`
	DeviceSignature string   `json:"deviceSignature"`
	Camera          string   `json:"camera"`
	FPS             float64  `json:"fps"`
	Practice        bool     `json:"practice,omitempty"`
	Locale          string   `json:"locale,omitempty"`
	Samples         []Sample `json:"samples"`
}

// ManualEntryMessage carries a cuff reading typed in by the user.
type ManualEntryMessage struct {
	UserID       string `json:"userId"`
	Systolic     int    `json:"systolic"`
	Diastolic    int    `json:"diastolic"`
	HeartRateBPM *int   `json:"heartRateBpm,omitempty"`
	Notes        string `json:"notes,omitempty"`
	MeasuredAt   int64  `json:"measuredAt,omitempty"`
}

// SessionActionMessage lets a client finish or discard its repeat workflow.
type SessionActionMessage struct {
	UserID string `json:"userId"`
	Action string `json:"action"` // "finish" or "reset"
}
