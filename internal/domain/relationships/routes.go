package relationships

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns relationships router
func (h *Handler) Routes(authMiddleware, sendLimiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// All routes require authentication
	r.Use(authMiddleware)

	// Friend request lifecycle
	r.With(sendLimiter).Post("/friend-requests/{id}", h.SendFriendRequest)
	r.Delete("/friend-requests/{id}", h.CancelFriendRequest)
	r.Post("/friend-requests/{id}/accept", h.AcceptFriendRequest)
	r.Post("/friend-requests/{id}/reject", h.RejectFriendRequest)
	r.Get("/pending-requests", h.PendingRequests)
	r.Get("/sent-requests", h.SentRequests)

	// Friends
	r.Get("/friends", h.MyFriends)
	r.Delete("/friends/{id}", h.RemoveFriend)
	r.Get("/suggestions", h.Suggestions)

	// Follows
	r.Post("/follows/{id}", h.Follow)
	r.Delete("/follows/{id}", h.Unfollow)

	// Other profiles
	r.Route("/users", func(r chi.Router) {
		r.Get("/by-username/{username}/status", h.StatusByUsername)
		r.Get("/{id}/friends", h.UserFriends)
		r.Get("/{id}/followers", h.Followers)
		r.Get("/{id}/following", h.Following)
		r.Get("/{id}/mutual-friends", h.MutualFriends)
		r.Get("/{id}/status", h.Status)
	})

	return r
}

// InternalRoutes returns the service-to-service router
func (h *Handler) InternalRoutes(internalAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(internalAuth)

	r.Get("/are-friends", h.AreFriends)
	r.Get("/users/{id}/friends", h.InternalFriends)

	return r
}
