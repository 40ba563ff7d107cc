package interfaces

import "classboard/pkg/types"

// SessionDirectory owns per-channel shared state: lock flag, shared document
// and participant set.
// ARCHITECTURAL DISCOVERY: Every mutation is a whole-value replacement under the
// directory's guard; callers only ever receive copies.
type SessionDirectory interface {
	// Join adds p to channelID, creating the channel if absent.
	Join(channelID string, p types.Participant) (*types.SessionSnapshot, error)

	// Leave removes userID; removed reports whether the channel was garbage collected.
	Leave(channelID, userID string) (count int, removed bool)

	Get(channelID string) (*types.SessionSnapshot, bool)
	Participants(channelID string) []types.Participant

	SetLocked(channelID string, locked bool) (*types.SessionSnapshot, error)
	ShareDocument(channelID string, doc types.DocumentState) (*types.SessionSnapshot, error)
	SetDocumentVisibility(channelID string, visible bool) (*types.SessionSnapshot, error)
	RemoveDocument(channelID string) (*types.SessionSnapshot, error)

	List() []*types.SessionSnapshot
}
