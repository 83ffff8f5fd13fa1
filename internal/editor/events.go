package editor

// EventKind identifies an editor event.
type EventKind string

const (
	EventWorkingCopyInstalled  EventKind = "working_copy_installed"
	EventWorkingCopyCleared    EventKind = "working_copy_cleared"
	EventUnsavedEditsDiscarded EventKind = "unsaved_edits_discarded"
	EventSaveRequested         EventKind = "save_requested"
)

// Event is delivered to subscribers after the editor lock is released.
type Event struct {
	Kind         EventKind `json:"kind"`
	ExtractionID string    `json:"extraction_id,omitempty"`
	// LostEdits is the number of edits thrown away by a reload.
	LostEdits int `json:"lost_edits,omitempty"`
}
