package relationships

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mwork/socialgraph-api/internal/domain/profile"
	"github.com/mwork/socialgraph-api/internal/pkg/errorhandler"
	"github.com/mwork/socialgraph-api/internal/pkg/logger"
	"github.com/mwork/socialgraph-api/internal/pkg/response"
	"github.com/mwork/socialgraph-api/internal/pkg/validator"
)

// IdentityResolver yields the caller's profile id or ErrUnauthenticated.
type IdentityResolver interface {
	CurrentProfileID(ctx context.Context) (uuid.UUID, error)
}

// Limits bounds list sizes accepted from clients.
type Limits struct {
	PageSizeDefault int
	PageSizeMax     int
	SuggestionsMax  int
	RetryAfter      time.Duration
}

// Handler handles relationship HTTP requests
type Handler struct {
	engine   *Engine
	queries  *QueryService
	identity IdentityResolver
	limits   Limits
}

// NewHandler creates relationship handler
func NewHandler(engine *Engine, queries *QueryService, identity IdentityResolver, limits Limits) *Handler {
	return &Handler{
		engine:   engine,
		queries:  queries,
		identity: identity,
		limits:   limits,
	}
}

// SendFriendRequest handles POST /relationships/friend-requests/{id}
// @Summary Send a friend request
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param id path string true "Target profile ID"
// @Success 200 {object} response.Response{data=RelationshipResultResponse}
// @Failure 400,401,404,429,503 {object} response.Response
// @Router /relationships/friend-requests/{id} [post]
func (h *Handler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	callerID, targetID, ok := h.callerAndPath(w, r)
	if !ok {
		return
	}

	result, err := h.engine.SendFriendRequest(r.Context(), callerID, targetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, ResultFromDomain(result))
}

// AcceptFriendRequest handles POST /relationships/friend-requests/{id}/accept
// @Summary Accept a friend request
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param id path string true "Sender profile ID"
// @Success 200 {object} response.Response{data=RelationshipResultResponse}
// @Failure 400,401,404,409,503 {object} response.Response
// @Router /relationships/friend-requests/{id}/accept [post]
func (h *Handler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	callerID, senderID, ok := h.callerAndPath(w, r)
	if !ok {
		return
	}

	result, err := h.engine.AcceptFriendRequest(r.Context(), callerID, senderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, ResultFromDomain(result))
}

// RejectFriendRequest handles POST /relationships/friend-requests/{id}/reject
func (h *Handler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.boolAction(w, r, h.engine.RejectFriendRequest)
}

// CancelFriendRequest handles DELETE /relationships/friend-requests/{id}
func (h *Handler) CancelFriendRequest(w http.ResponseWriter, r *http.Request) {
	h.boolAction(w, r, h.engine.CancelFriendRequest)
}

// RemoveFriend handles DELETE /relationships/friends/{id}
func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	h.boolAction(w, r, h.engine.RemoveFriend)
}

// Follow handles POST /relationships/follows/{id}
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	h.boolAction(w, r, h.engine.Follow)
}

// Unfollow handles DELETE /relationships/follows/{id}
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.boolAction(w, r, h.engine.Unfollow)
}

// MyFriends handles GET /relationships/friends
// @Summary List my friends
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param page query int false "Zero-based page index"
// @Param size query int false "Page size"
// @Success 200 {object} response.Response{data=[]profile.Summary}
// @Failure 401,422,503 {object} response.Response
// @Router /relationships/friends [get]
func (h *Handler) MyFriends(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	page, err := h.queries.Friends(r.Context(), callerID, p)
	h.writePage(w, r, page, p, err)
}

// UserFriends handles GET /relationships/users/{id}/friends
func (h *Handler) UserFriends(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.queries.Friends)
}

// Followers handles GET /relationships/users/{id}/followers
func (h *Handler) Followers(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.queries.Followers)
}

// Following handles GET /relationships/users/{id}/following
func (h *Handler) Following(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.queries.Following)
}

// MutualFriends handles GET /relationships/users/{id}/mutual-friends
func (h *Handler) MutualFriends(w http.ResponseWriter, r *http.Request) {
	callerID, otherID, ok := h.callerAndPath(w, r)
	if !ok {
		return
	}
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	page, err := h.queries.MutualFriends(r.Context(), callerID, otherID, p)
	h.writePage(w, r, page, p, err)
}

// PendingRequests handles GET /relationships/pending-requests
func (h *Handler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	h.callerList(w, r, h.queries.PendingRequests)
}

// SentRequests handles GET /relationships/sent-requests
func (h *Handler) SentRequests(w http.ResponseWriter, r *http.Request) {
	h.callerList(w, r, h.queries.SentRequests)
}

// Suggestions handles GET /relationships/suggestions
// @Summary Friend suggestions
// @Description Friends of friends ranked by the number of mutual friends.
// @Tags Relationships
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of suggestions"
// @Success 200 {object} response.Response{data=[]SuggestionResponse}
// @Failure 401,422,503 {object} response.Response
// @Router /relationships/suggestions [get]
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	q := SuggestionQuery{Limit: h.limits.SuggestionsMax}
	details := map[string]string{}
	parseIntParam(r, "limit", &q.Limit, details)
	if !h.validate(w, r, &q, details) {
		return
	}
	if q.Limit > h.limits.SuggestionsMax {
		q.Limit = h.limits.SuggestionsMax
	}

	items, err := h.queries.Suggestions(r.Context(), callerID, q.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, SuggestionsFromDomain(items))
}

// Status handles GET /relationships/users/{id}/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	callerID, otherID, ok := h.callerAndPath(w, r)
	if !ok {
		return
	}

	status, err := h.queries.Status(r.Context(), callerID, otherID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, StatusFromDomain(status))
}

// StatusByUsername handles GET /relationships/users/by-username/{username}/status
func (h *Handler) StatusByUsername(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	username := chi.URLParam(r, "username")
	if err := validator.ValidateVar(username, "required,username"); err != nil {
		response.BadRequest(w, "Invalid username")
		return
	}

	status, err := h.queries.StatusByUsername(r.Context(), callerID, username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, StatusFromDomain(status))
}

// AreFriends handles GET /internal/relationships/are-friends?userId1=&userId2=
// @Summary Check friendship (service-to-service)
// @Tags Internal
// @Produce json
// @Param userId1 query string true "First profile ID"
// @Param userId2 query string true "Second profile ID"
// @Success 200 {object} response.Response{data=AreFriendsResponse}
// @Failure 400,401,503 {object} response.Response
// @Router /internal/relationships/are-friends [get]
func (h *Handler) AreFriends(w http.ResponseWriter, r *http.Request) {
	a, errA := uuid.Parse(r.URL.Query().Get("userId1"))
	b, errB := uuid.Parse(r.URL.Query().Get("userId2"))
	if errA != nil || errB != nil {
		response.BadRequest(w, "userId1 and userId2 must be valid profile IDs")
		return
	}

	friends, err := h.engine.AreFriends(r.Context(), a, b)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, AreFriendsResponse{AreFriends: friends})
}

// InternalFriends handles GET /internal/relationships/users/{id}/friends
// @Summary List a profile's friends (service-to-service)
// @Tags Internal
// @Produce json
// @Param id path string true "Profile ID"
// @Param page query int false "Zero-based page index"
// @Param size query int false "Page size"
// @Success 200 {object} response.Response{data=[]profile.Summary}
// @Failure 400,401,404,422,503 {object} response.Response
// @Router /internal/relationships/users/{id}/friends [get]
func (h *Handler) InternalFriends(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid profile ID")
		return
	}
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	page, err := h.queries.Friends(r.Context(), userID, p)
	h.writePage(w, r, page, p, err)
}

type boolOp func(ctx context.Context, callerID, targetID uuid.UUID) (bool, error)

func (h *Handler) boolAction(w http.ResponseWriter, r *http.Request, op boolOp) {
	callerID, targetID, ok := h.callerAndPath(w, r)
	if !ok {
		return
	}

	result, err := op(r.Context(), callerID, targetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, ActionResponse{Result: result})
}

type listOp func(ctx context.Context, id uuid.UUID, p Pagination) (*Page[*profile.Summary], error)

func (h *Handler) userList(w http.ResponseWriter, r *http.Request, op listOp) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid profile ID")
		return
	}
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	page, err := op(r.Context(), userID, p)
	h.writePage(w, r, page, p, err)
}

func (h *Handler) callerList(w http.ResponseWriter, r *http.Request, op listOp) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}
	p, ok := h.parsePage(w, r)
	if !ok {
		return
	}

	page, err := op(r.Context(), callerID, p)
	h.writePage(w, r, page, p, err)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	callerID, err := h.identity.CurrentProfileID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return uuid.Nil, false
	}
	return callerID, true
}

func (h *Handler) callerAndPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	otherID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid profile ID")
		return uuid.Nil, uuid.Nil, false
	}
	return callerID, otherID, true
}

func (h *Handler) parsePage(w http.ResponseWriter, r *http.Request) (Pagination, bool) {
	q := PageQuery{Page: 0, Size: h.limits.PageSizeDefault}
	details := map[string]string{}
	parseIntParam(r, "page", &q.Page, details)
	parseIntParam(r, "size", &q.Size, details)
	if !h.validate(w, r, &q, details) {
		return Pagination{}, false
	}
	if q.Size > h.limits.PageSizeMax {
		q.Size = h.limits.PageSizeMax
	}
	return Pagination{Page: q.Page, Size: q.Size}, true
}

func parseIntParam(r *http.Request, name string, dst *int, details map[string]string) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		details[name] = "Must be an integer"
		return
	}
	*dst = n
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request, q any, details map[string]string) bool {
	if len(details) == 0 {
		if errs := validator.Validate(q); errs != nil {
			details = errs
		}
	}
	if len(details) == 0 {
		return true
	}
	errorhandler.LogValidationError(r.Context(), details)
	response.ValidationError(w, details)
	return false
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, page *Page[*profile.Summary], p Pagination, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.WithMeta(w, page.Items, response.NewMeta(page.Total, p.Page, p.Size))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		response.Unauthorized(w, "Authentication required")
	case errors.Is(err, ErrTargetNotFound):
		response.Error(w, http.StatusNotFound, "TARGET_NOT_FOUND", "Profile not found")
	case errors.Is(err, ErrRequestNotFound):
		response.Error(w, http.StatusNotFound, "REQUEST_NOT_FOUND", "Friend request not found")
	case errors.Is(err, ErrSelfRelationship):
		response.Error(w, http.StatusBadRequest, "SELF_RELATIONSHIP", "Cannot create a relationship with yourself")
	case errors.Is(err, ErrAlreadyFriends):
		response.Conflict(w, "ALREADY_FRIENDS", "You are already friends")
	case errors.Is(err, ErrRequestAlreadyProcessed):
		response.Conflict(w, "REQUEST_ALREADY_PROCESSED", "Friend request was already processed")
	case errors.Is(err, ErrNotFriends):
		response.Conflict(w, "NOT_FRIENDS", "You are not friends")
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, profile.ErrDirectoryUnavailable):
		logger.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Relationship store unavailable")
		response.ServiceUnavailable(w, h.limits.RetryAfter)
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}
