package models

import "time"

// Swap statuses.
const (
	SwapProposed  = "proposed"
	SwapAccepted  = "accepted"
	SwapRejected  = "rejected"
	SwapCancelled = "cancelled"
	SwapCompleted = "completed"
)

// Swap is a proposal by one user to exchange another user's item.
type Swap struct {
	ID          string    `json:"id"`
	ItemID      string    `json:"itemId"`
	ProposerID  string    `json:"proposerId"`
	RecipientID string    `json:"recipientId"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsTerminal reports whether no further transition is possible.
func (s Swap) IsTerminal() bool {
	switch s.Status {
	case SwapRejected, SwapCancelled, SwapCompleted:
		return true
	}
	return false
}

// IsActive reports whether the swap still holds its item.
func (s Swap) IsActive() bool {
	return s.Status == SwapProposed || s.Status == SwapAccepted
}

// Involves reports whether userID is one of the two participants.
func (s Swap) Involves(userID string) bool {
	return s.ProposerID == userID || s.RecipientID == userID
}

// SwapFilter narrows the caller's swap listing.
type SwapFilter struct {
	// Role is "proposer", "recipient" or empty for both.
	Role   string
	Status string
}

// SwapEvent is pushed to both participants on every status change.
type SwapEvent struct {
	SwapID    string    `json:"swap_id"`
	NewStatus string    `json:"new_status"`
	Timestamp time.Time `json:"timestamp"`
}
