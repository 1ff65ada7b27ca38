package relationships

import (
	"time"

	"github.com/google/uuid"

	"github.com/mwork/socialgraph-api/internal/domain/profile"
)

// PageQuery is the ?page=&size= query of list endpoints. Page is zero-based.
type PageQuery struct {
	Page int `query:"page" validate:"gte=0"`
	Size int `query:"size" validate:"gte=1"`
}

// SuggestionQuery is the ?limit= query of GET /suggestions
type SuggestionQuery struct {
	Limit int `query:"limit" validate:"gte=1"`
}

// RelationshipResultResponse represents a friend request transition in API response
type RelationshipResultResponse struct {
	TargetID   uuid.UUID     `json:"target_id"`
	SenderID   uuid.UUID     `json:"sender_id"`
	ReceiverID uuid.UUID     `json:"receiver_id"`
	Status     RequestStatus `json:"status"`
	Message    string        `json:"message"`
	UpdatedAt  string        `json:"updated_at"`
}

// ResultFromDomain converts an engine result to response
func ResultFromDomain(r *RelationshipResult) *RelationshipResultResponse {
	return &RelationshipResultResponse{
		TargetID:   r.TargetID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Status:     r.Status,
		Message:    r.Message,
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}

// ActionResponse is returned by boolean mutations
type ActionResponse struct {
	Result bool `json:"result"`
}

// AreFriendsResponse for GET /internal/relationships/are-friends
type AreFriendsResponse struct {
	AreFriends bool `json:"are_friends"`
}

// StatusResponse describes the caller's relationship with another profile
type StatusResponse struct {
	ProfileID       uuid.UUID `json:"profile_id"`
	Friends         bool      `json:"friends"`
	RequestSent     bool      `json:"request_sent"`
	RequestReceived bool      `json:"request_received"`
	Following       bool      `json:"following"`
	FollowedBy      bool      `json:"followed_by"`
}

// StatusFromDomain converts status to response
func StatusFromDomain(s *RelationshipStatus) *StatusResponse {
	return &StatusResponse{
		ProfileID:       s.ProfileID,
		Friends:         s.Friends,
		RequestSent:     s.RequestSent,
		RequestReceived: s.RequestReceived,
		Following:       s.Following,
		FollowedBy:      s.FollowedBy,
	}
}

// SuggestionResponse is one friend suggestion
type SuggestionResponse struct {
	Profile       *profile.Summary `json:"profile"`
	MutualFriends int              `json:"mutual_friends"`
}

// SuggestionsFromDomain converts suggestions to response
func SuggestionsFromDomain(items []*SuggestedProfile) []*SuggestionResponse {
	out := make([]*SuggestionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, &SuggestionResponse{Profile: s.Profile, MutualFriends: s.MutualFriends})
	}
	return out
}
