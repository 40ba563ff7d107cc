package types

// Stroke phases of a drawing event.
const (
	PhaseStart = "start"
	PhaseDraw  = "draw"
	PhaseEnd   = "end"
)

// JoinRequest is the join-whiteboard payload.
// Token is only consulted when the relay runs in strict mode.
type JoinRequest struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	UserID    string `json:"userId" validate:"required,max=128"`
	UserName  string `json:"userName" validate:"max=200"`
	Role      Role   `json:"role" validate:"required,oneof=teacher student"`
	Token     string `json:"token,omitempty"`
}

// LeaveRequest is the leave-whiteboard payload.
type LeaveRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
}

// DrawingEvent is one primitive of a stroke.
// FUNCTIONAL DISCOVERY: End events of shape tools carry the anchor point so a
// receiver can render the shape without replaying intermediate draw events.
type DrawingEvent struct {
	ChannelID string   `json:"channelId"`
	UserID    string   `json:"userId"`
	Type      string   `json:"type" validate:"required,oneof=start draw end"`
	Tool      Tool     `json:"tool"`
	Color     string   `json:"color" validate:"max=32"`
	LineWidth float64  `json:"lineWidth" validate:"gt=0,lte=512"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	StartX    *float64 `json:"startX,omitempty"`
	StartY    *float64 `json:"startY,omitempty"`
}

// Anchor returns the carried start point of an end event.
func (e *DrawingEvent) Anchor() (float64, float64, bool) {
	if e.StartX == nil || e.StartY == nil {
		return 0, 0, false
	}
	return *e.StartX, *e.StartY, true
}

// ClearCanvasRequest is the clear-canvas payload.
type ClearCanvasRequest struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

// ToggleLockRequest is the toggle-lock payload.
type ToggleLockRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
	Locked    bool   `json:"locked"`
}

// SharePDFRequest is the share-pdf payload; pdfData is base64 on the wire.
type SharePDFRequest struct {
	ChannelID         string `json:"channelId" validate:"required"`
	PDFData           []byte `json:"pdfData" validate:"required,min=1"`
	FileName          string `json:"fileName" validate:"required,max=255"`
	SharedBy          string `json:"sharedBy" validate:"max=200"`
	VisibleToStudents bool   `json:"visibleToStudents"`
}

// TogglePDFVisibilityRequest is the toggle-pdf-visibility payload.
type TogglePDFVisibilityRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
	Visible   bool   `json:"visible"`
}

// RemovePDFRequest is the remove-pdf payload.
type RemovePDFRequest struct {
	ChannelID string `json:"channelId" validate:"required"`
}

// PDFSharedPayload is broadcast as pdf-shared and embedded in session snapshots.
type PDFSharedPayload struct {
	PDFData           []byte `json:"pdfData"`
	FileName          string `json:"fileName"`
	SharedBy          string `json:"sharedBy"`
	VisibleToStudents bool   `json:"visibleToStudents"`
}

// SnapshotPayload is the session-snapshot reply to a join.
type SnapshotPayload struct {
	ChannelID        string            `json:"channelId"`
	Locked           bool              `json:"locked"`
	ParticipantCount int               `json:"participantCount"`
	Document         *PDFSharedPayload `json:"document,omitempty"`
	// Role is the role the relay accepted for the joiner.
	Role Role `json:"role,omitempty"`
}

// ErrorPayload is sent back to the originator of a rejected intent.
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DocumentPayload converts a document state to its wire form.
func DocumentPayload(doc *DocumentState) *PDFSharedPayload {
	if doc == nil {
		return nil
	}
	return &PDFSharedPayload{
		PDFData:           doc.Blob,
		FileName:          doc.FileName,
		SharedBy:          doc.SharedBy,
		VisibleToStudents: doc.VisibleToStudents,
	}
}

// NewSnapshotPayload converts a directory snapshot to its wire form.
func NewSnapshotPayload(s *SessionSnapshot) SnapshotPayload {
	return SnapshotPayload{
		ChannelID:        s.ChannelID,
		Locked:           s.Locked,
		ParticipantCount: s.ParticipantCount,
		Document:         DocumentPayload(s.Document),
	}
}
