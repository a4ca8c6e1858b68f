package models

import "time"

// MaxWinners bounds how many prize slots a single drop may carry.
const MaxWinners = 3

// PayoutMode selects how the post-fee prize pool is divided among winners.
type PayoutMode string

const (
	// PayoutTiered splits the pool 100, 60/40 or 50/30/20 by winner rank.
	PayoutTiered PayoutMode = "tiered"
	// PayoutEqual divides the pool evenly; the integer remainder goes to
	// the first winner.
	PayoutEqual PayoutMode = "equal"
)

// Participant is one enrolled entrant, in join order.
type Participant struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Winner links a prize slot to the participant it paid out to.
// The same address may appear in more than one slot: winner selection
// does not deduplicate index collisions.
type Winner struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// RandomnessRequest correlates an opaque oracle request identifier back
// to the drop it was issued for.
type RandomnessRequest struct {
	ID          string    `json:"id"`
	DropID      uint64    `json:"dropId"`
	Fulfilled   bool      `json:"fulfilled"`
	RequestedAt time.Time `json:"requestedAt"`
}

// EventType tags entries in a drop's event trail.
type EventType string

const (
	EventCreated         EventType = "created"
	EventJoined          EventType = "joined"
	EventRequestSent     EventType = "request_sent"
	EventWinnersSelected EventType = "winners_selected"
	EventCancelled       EventType = "cancelled"
)

// DropEvent is one record in a drop's append-only event trail.
type DropEvent struct {
	Type   EventType `json:"type"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Drop is a snapshot of one pooled-value drawing.
type Drop struct {
	ID                  uint64        `json:"id"`
	Host                string        `json:"host"`
	IsPaidEntry         bool          `json:"isPaidEntry"`
	IsManualSelection   bool          `json:"isManualSelection"`
	EntryFee            uint64        `json:"entryFee"`
	RewardAmount        uint64        `json:"rewardAmount"`
	MaxParticipants     int           `json:"maxParticipants"`
	NumWinners          int           `json:"numWinners"`
	CurrentParticipants int           `json:"currentParticipants"`
	IsActive            bool          `json:"isActive"`
	IsCompleted         bool          `json:"isCompleted"`
	Participants        []Participant `json:"participants,omitempty"`
	Winners             []Winner      `json:"winners,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
}
