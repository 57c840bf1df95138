package recorder

import "time"

// RUMContext identifies the application, session and view a capture belongs
// to, plus the offset between the device clock and the server clock.
type RUMContext struct {
	ApplicationID    string        `json:"application_id"`
	SessionID        string        `json:"session_id"`
	ViewID           string        `json:"view_id"`
	ServerTimeOffset time.Duration `json:"server_time_offset"`
}

// Context is what the caller supplies for one capture.
type Context struct {
	Privacy    PrivacyLevel
	RUMContext RUMContext
	// Date is the local capture time, before server offset correction.
	Date time.Time
}

// ViewTreeRecordingContext is built once per snapshot and handed to every
// NodeRecorder during the walk. NodeRecorders read it and never modify it.
type ViewTreeRecordingContext struct {
	// Recorder is the caller's context, unchanged.
	Recorder Context
	// CoordinateSpace is the snapshot root. All frames are expressed
	// relative to its origin.
	CoordinateSpace View
	// IDs allocates NodeIDs. NodeRecorders that build their own children
	// (SubtreeIgnore with Children) take ids from here.
	IDs *NodeIDGenerator

	TextObfuscator          TextObfuscator
	SelectionTextObfuscator TextObfuscator
	SensitiveTextObfuscator TextObfuscator
}

// ConvertFrame returns the frame of view relative to the snapshot root.
func (c *ViewTreeRecordingContext) ConvertFrame(view View) Rect {
	if c.CoordinateSpace == nil {
		return view.Frame()
	}
	origin := c.CoordinateSpace.Frame()
	return view.Frame().Offset(-origin.X, -origin.Y)
}
