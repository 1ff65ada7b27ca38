package profile

import "github.com/google/uuid"

// Summary is the profile card embedded in relationship listings
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	City        string    `json:"city,omitempty"`
}

// SummaryFromEntity converts entity to response
func SummaryFromEntity(p *Profile) *Summary {
	s := &Summary{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName(),
		FirstName:   p.FirstName.String,
		LastName:    p.LastName.String,
		City:        p.City.String,
	}
	if p.AvatarURL.Valid && p.AvatarURL.String != "" {
		url := p.AvatarURL.String
		s.AvatarURL = &url
	}
	return s
}
