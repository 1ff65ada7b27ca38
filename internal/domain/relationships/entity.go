package relationships

import (
	"bytes"
	"math"
	"time"

	"github.com/google/uuid"
)

// EdgeKind distinguishes the two directed relationship types
type EdgeKind string

const (
	KindFriendRequest EdgeKind = "FRIEND_REQUEST"
	KindFollow        EdgeKind = "FOLLOW"
)

// RequestStatus is the lifecycle state of a FRIEND_REQUEST edge
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusAccepted RequestStatus = "ACCEPTED"
	StatusRejected RequestStatus = "REJECTED"
)

// Edge is a directed relationship record (matches relationship_edges table).
// Status is empty for FOLLOW edges.
type Edge struct {
	SenderID   uuid.UUID     `db:"sender_id"`
	ReceiverID uuid.UUID     `db:"receiver_id"`
	Kind       EdgeKind      `db:"kind"`
	Status     RequestStatus `db:"status"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

// IsPending reports whether e is a pending friend request. Safe on nil.
func (e *Edge) IsPending() bool {
	return e != nil && e.Kind == KindFriendRequest && e.Status == StatusPending
}

// IsAccepted reports whether e is a friendship. Safe on nil.
func (e *Edge) IsAccepted() bool {
	return e != nil && e.Kind == KindFriendRequest && e.Status == StatusAccepted
}

// IsRejected reports whether e is a rejected friend request. Safe on nil.
func (e *Edge) IsRejected() bool {
	return e != nil && e.Kind == KindFriendRequest && e.Status == StatusRejected
}

// Counterpart returns the other end of the edge as seen from id.
func (e *Edge) Counterpart(id uuid.UUID) uuid.UUID {
	if e.SenderID == id {
		return e.ReceiverID
	}
	return e.SenderID
}

func newFriendRequest(sender, receiver uuid.UUID, now time.Time) *Edge {
	return &Edge{
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       KindFriendRequest,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newFollow(sender, receiver uuid.UUID, now time.Time) *Edge {
	return &Edge{
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       KindFollow,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Pagination is a zero-based page request
type Pagination struct {
	Page int
	Size int
}

// Offset returns the number of rows to skip. It saturates at math.MaxInt
// instead of overflowing, so a page far past the end stays past the end.
func (p Pagination) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

// Page is one slice of an ordered result set plus the size of the whole set.
type Page[T any] struct {
	Items []T
	Total int
}

// Suggestion is a friend-of-friend candidate with the number of shared friends.
type Suggestion struct {
	ProfileID   uuid.UUID `db:"profile_id" json:"profile_id"`
	MutualCount int       `db:"mutual_count" json:"mutual_count"`
}

// RelationshipResult is returned by friend request transitions. TargetID is
// the profile the caller acted on, whichever side of the edge it is.
type RelationshipResult struct {
	TargetID   uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Status     RequestStatus
	Message    string
	UpdatedAt  time.Time
}

func resultFromEdge(e *Edge, targetID uuid.UUID, message string) *RelationshipResult {
	return &RelationshipResult{
		TargetID:   targetID,
		SenderID:   e.SenderID,
		ReceiverID: e.ReceiverID,
		Status:     e.Status,
		Message:    message,
		UpdatedAt:  e.UpdatedAt,
	}
}

// RelationshipStatus describes every edge between the caller and another profile.
type RelationshipStatus struct {
	ProfileID       uuid.UUID
	Friends         bool
	RequestSent     bool
	RequestReceived bool
	Following       bool
	FollowedBy      bool
}

// canonicalPair orders a and b so that both directions of a pair share one key.
func canonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}
