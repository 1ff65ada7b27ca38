package relationships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/socialgraph-api/internal/domain/profile"
	"github.com/mwork/socialgraph-api/internal/pkg/logger"
)

// ProfileDirectory is the read-only profile lookup used for target
// validation and result hydration. profile.Repository satisfies it.
type ProfileDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
	GetByUsername(ctx context.Context, username string) (*profile.Profile, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*profile.Profile, error)
}

const publishTimeout = 2 * time.Second

// Engine applies friend request and follow transitions. It holds no
// relationship state; every mutation is one Store.Atomic unit on the pair.
type Engine struct {
	store     Store
	profiles  ProfileDirectory
	publisher EventPublisher
	cache     SuggestionCache
	timeout   time.Duration
	now       func() time.Time
}

// NewEngine creates the relationship engine. Nil publisher or cache disable
// events and suggestion invalidation.
func NewEngine(store Store, profiles ProfileDirectory, publisher EventPublisher, cache SuggestionCache, timeout time.Duration) *Engine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if cache == nil {
		cache = NopSuggestionCache{}
	}
	return &Engine{
		store:     store,
		profiles:  profiles,
		publisher: publisher,
		cache:     cache,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendFriendRequest creates a pending request from caller to target. A pending
// request in the opposite direction is accepted instead, and an existing
// friendship or outgoing pending request is returned unchanged.
func (e *Engine) SendFriendRequest(ctx context.Context, callerID, targetID uuid.UUID) (result *RelationshipResult, err error) {
	defer func() { recordMutation("send_friend_request", err) }()

	if callerID == targetID {
		return nil, ErrSelfRelationship
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	if err := lookupProfile(ctx, e.profiles, targetID); err != nil {
		return nil, err
	}

	var event EventType
	err = e.store.Atomic(ctx, callerID, targetID, func(ctx context.Context, tx EdgeTx) error {
		result, event = nil, ""

		outgoing, err := tx.FindEdge(ctx, callerID, targetID, KindFriendRequest)
		if err != nil {
			return err
		}
		incoming, err := tx.FindEdge(ctx, targetID, callerID, KindFriendRequest)
		if err != nil {
			return err
		}

		now := e.now()
		switch {
		case outgoing.IsAccepted():
			result = resultFromEdge(outgoing, targetID, "already friends")
		case incoming.IsAccepted():
			result = resultFromEdge(incoming, targetID, "already friends")
		case outgoing.IsPending():
			result = resultFromEdge(outgoing, targetID, "friend request already sent")
		case incoming.IsPending():
			incoming.Status = StatusAccepted
			incoming.UpdatedAt = now
			if err := tx.UpsertEdge(ctx, incoming); err != nil {
				return err
			}
			result, event = resultFromEdge(incoming, targetID, "friend request accepted"), EventFriendRequestAccepted
		default:
			if incoming.IsRejected() {
				if _, err := tx.DeleteEdge(ctx, targetID, callerID, KindFriendRequest); err != nil {
					return err
				}
			}
			edge := newFriendRequest(callerID, targetID, now)
			if err := tx.UpsertEdge(ctx, edge); err != nil {
				return err
			}
			result, event = resultFromEdge(edge, targetID, "friend request sent"), EventFriendRequestSent
		}
		return nil
	})
	if err != nil {
		return nil, storeFailure(err)
	}

	e.afterMutation(ctx, event, callerID, targetID, true)
	return result, nil
}

// AcceptFriendRequest accepts the pending request sent by senderID to caller.
func (e *Engine) AcceptFriendRequest(ctx context.Context, callerID, senderID uuid.UUID) (result *RelationshipResult, err error) {
	defer func() { recordMutation("accept_friend_request", err) }()

	if callerID == senderID {
		return nil, ErrSelfRelationship
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	err = e.store.Atomic(ctx, callerID, senderID, func(ctx context.Context, tx EdgeTx) error {
		edge, err := tx.FindEdge(ctx, senderID, callerID, KindFriendRequest)
		if err != nil {
			return err
		}
		if edge == nil {
			return ErrRequestNotFound
		}
		if !edge.IsPending() {
			return ErrRequestAlreadyProcessed
		}

		edge.Status = StatusAccepted
		edge.UpdatedAt = e.now()
		if err := tx.UpsertEdge(ctx, edge); err != nil {
			return err
		}
		result = resultFromEdge(edge, senderID, "friend request accepted")
		return nil
	})
	if err != nil {
		return nil, storeFailure(err)
	}

	e.afterMutation(ctx, EventFriendRequestAccepted, callerID, senderID, true)
	return result, nil
}

// RejectFriendRequest rejects the pending request sent by senderID to caller.
func (e *Engine) RejectFriendRequest(ctx context.Context, callerID, senderID uuid.UUID) (ok bool, err error) {
	defer func() { recordMutation("reject_friend_request", err) }()

	if callerID == senderID {
		return false, ErrSelfRelationship
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	err = e.store.Atomic(ctx, callerID, senderID, func(ctx context.Context, tx EdgeTx) error {
		edge, err := tx.FindEdge(ctx, senderID, callerID, KindFriendRequest)
		if err != nil {
			return err
		}
		switch {
		case edge == nil:
			return ErrRequestNotFound
		case edge.IsAccepted():
			return ErrAlreadyFriends
		case edge.IsRejected():
			return ErrRequestAlreadyProcessed
		}

		edge.Status = StatusRejected
		edge.UpdatedAt = e.now()
		return tx.UpsertEdge(ctx, edge)
	})
	if err != nil {
		return false, storeFailure(err)
	}

	e.afterMutation(ctx, EventFriendRequestRejected, callerID, senderID, true)
	return true, nil
}

// CancelFriendRequest withdraws the caller's pending request to target.
func (e *Engine) CancelFriendRequest(ctx context.Context, callerID, targetID uuid.UUID) (ok bool, err error) {
	defer func() { recordMutation("cancel_friend_request", err) }()

	if callerID == targetID {
		return false, ErrSelfRelationship
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	err = e.store.Atomic(ctx, callerID, targetID, func(ctx context.Context, tx EdgeTx) error {
		edge, err := tx.FindEdge(ctx, callerID, targetID, KindFriendRequest)
		if err != nil {
			return err
		}
		if !edge.IsPending() {
			return ErrRequestNotFound
		}
		_, err = tx.DeleteEdge(ctx, callerID, targetID, KindFriendRequest)
		return err
	})
	if err != nil {
		return false, storeFailure(err)
	}

	e.afterMutation(ctx, EventFriendRequestCancelled, callerID, targetID, true)
	return true, nil
}

// RemoveFriend deletes the friendship between caller and target regardless of
// who sent the original request.
func (e *Engine) RemoveFriend(ctx context.Context, callerID, targetID uuid.UUID) (ok bool, err error) {
	defer func() { recordMutation("remove_friend", err) }()

	if callerID == targetID {
		return false, ErrSelfRelationship
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	err = e.store.Atomic(ctx, callerID, targetID, func(ctx context.Context, tx EdgeTx) error {
		for _, dir := range [][2]uuid.UUID{{callerID, targetID}, {targetID, callerID}} {
			edge, err := tx.FindEdge(ctx, dir[0], dir[1], KindFriendRequest)
			if err != nil {
				return err
			}
			if edge.IsAccepted() {
				_, err := tx.DeleteEdge(ctx, dir[0], dir[1], KindFriendRequest)
				return err
			}
		}
		return ErrNotFriends
	})
	if err != nil {
		return false, storeFailure(err)
	}

	e.afterMutation(ctx, EventFriendshipRemoved, callerID, targetID, true)
	return true, nil
}

// Follow makes caller follow target. Following yourself is a no-op that
// returns false; following again returns true.
func (e *Engine) Follow(ctx context.Context, callerID, targetID uuid.UUID) (ok bool, err error) {
	defer func() { recordMutation("follow", err) }()

	if callerID == targetID {
		return false, nil
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	if err := lookupProfile(ctx, e.profiles, targetID); err != nil {
		return false, err
	}

	created := false
	err = e.store.Atomic(ctx, callerID, targetID, func(ctx context.Context, tx EdgeTx) error {
		created = false
		existing, err := tx.FindEdge(ctx, callerID, targetID, KindFollow)
		if err != nil || existing != nil {
			return err
		}
		created = true
		return tx.UpsertEdge(ctx, newFollow(callerID, targetID, e.now()))
	})
	if err != nil {
		return false, storeFailure(err)
	}

	if created {
		e.afterMutation(ctx, EventFollowCreated, callerID, targetID, false)
	}
	return true, nil
}

// Unfollow removes the caller's follow of target and reports whether one existed.
func (e *Engine) Unfollow(ctx context.Context, callerID, targetID uuid.UUID) (ok bool, err error) {
	defer func() { recordMutation("unfollow", err) }()

	if callerID == targetID {
		return false, nil
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	var deleted bool
	err = e.store.Atomic(ctx, callerID, targetID, func(ctx context.Context, tx EdgeTx) error {
		var err error
		deleted, err = tx.DeleteEdge(ctx, callerID, targetID, KindFollow)
		return err
	})
	if err != nil {
		return false, storeFailure(err)
	}

	if deleted {
		e.afterMutation(ctx, EventFollowRemoved, callerID, targetID, false)
	}
	return deleted, nil
}

// AreFriends reports whether an accepted friend request exists between a and b
// in either direction.
func (e *Engine) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if a == b {
		return false, nil
	}

	ctx, cancel := withStoreTimeout(ctx, e.timeout)
	defer cancel()

	for _, dir := range [][2]uuid.UUID{{a, b}, {b, a}} {
		edge, err := e.store.FindEdge(ctx, dir[0], dir[1], KindFriendRequest)
		if err != nil {
			return false, storeFailure(err)
		}
		if edge.IsAccepted() {
			return true, nil
		}
	}
	return false, nil
}

// afterMutation publishes the event and drops cached suggestions of both
// parties. Failures are logged; the write is already acknowledged.
func (e *Engine) afterMutation(ctx context.Context, event EventType, actorID, targetID uuid.UUID, friendGraph bool) {
	if event == "" {
		return
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("caller_id", actorID.String()).
		Str("target_id", targetID.String()).
		Str("transition", string(event)).
		Msg("Relationship changed")

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if friendGraph {
		if err := e.cache.Invalidate(bg, actorID, targetID); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate suggestion cache")
		}
	}

	err := e.publisher.Publish(bg, RelationshipEvent{
		Type:       event,
		ActorID:    actorID,
		TargetID:   targetID,
		OccurredAt: e.now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("event", string(event)).Msg("Failed to publish relationship event")
	}
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeFailure turns context expiry into ErrStoreUnavailable and passes
// domain errors through unchanged.
func storeFailure(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func lookupProfile(ctx context.Context, dir ProfileDirectory, id uuid.UUID) error {
	_, err := dir.GetByID(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, profile.ErrProfileNotFound):
		return ErrTargetNotFound
	default:
		return fmt.Errorf("%w: profile lookup: %w", ErrStoreUnavailable, err)
	}
}
