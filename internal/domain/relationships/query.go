package relationships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mwork/socialgraph-api/internal/domain/profile"
	"github.com/mwork/socialgraph-api/internal/pkg/logger"
)

// SuggestedProfile is a hydrated friend suggestion
type SuggestedProfile struct {
	Profile       *profile.Summary
	MutualFriends int
}

// QueryService answers read-only relationship queries and hydrates profile ids
// into summaries with one batched directory call per result.
type QueryService struct {
	store    Store
	profiles ProfileDirectory
	cache    SuggestionCache
	timeout  time.Duration
}

// NewQueryService creates the graph query service
func NewQueryService(store Store, profiles ProfileDirectory, cache SuggestionCache, timeout time.Duration) *QueryService {
	if cache == nil {
		cache = NopSuggestionCache{}
	}
	return &QueryService{
		store:    store,
		profiles: profiles,
		cache:    cache,
		timeout:  timeout,
	}
}

// Friends lists the accepted friends of userID, most recent friendship first.
func (q *QueryService) Friends(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[*profile.Summary], error) {
	return q.userPage(ctx, userID, p, q.store.PageFriends)
}

// Followers lists profiles following userID.
func (q *QueryService) Followers(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[*profile.Summary], error) {
	return q.userPage(ctx, userID, p, q.store.PageFollowers)
}

// Following lists profiles userID follows.
func (q *QueryService) Following(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[*profile.Summary], error) {
	return q.userPage(ctx, userID, p, q.store.PageFollowing)
}

// PendingRequests lists senders of pending requests addressed to caller.
func (q *QueryService) PendingRequests(ctx context.Context, callerID uuid.UUID, p Pagination) (*Page[*profile.Summary], error) {
	ctx, cancel := withStoreTimeout(ctx, q.timeout)
	defer cancel()
	return q.hydratePage(ctx, func(ctx context.Context) (*Page[uuid.UUID], error) {
		return q.store.PagePendingReceived(ctx, callerID, p)
	})
}

// SentRequests lists receivers of the caller's pending requests.
func (q *QueryService) SentRequests(ctx context.Context, callerID uuid.UUID, p Pagination) (*Page[*profile.Summary], error) {
	ctx, cancel := withStoreTimeout(ctx, q.timeout)
	defer cancel()
	return q.hydratePage(ctx, func(ctx context.Context) (*Page[uuid.UUID], error) {
		return q.store.PagePendingSent(ctx, callerID, p)
	})
}

// MutualFriends lists the friends caller and other have in common.
func (q *QueryService) MutualFriends(ctx context.Context, callerID, otherID uuid.UUID, p Pagination) (*Page[*profile.Summary], error) {
	if callerID == otherID {
		return nil, ErrSelfRelationship
	}

	ctx, cancel := withStoreTimeout(ctx, q.timeout)
	defer cancel()

	if err := lookupProfile(ctx, q.profiles, otherID); err != nil {
		return nil, err
	}
	return q.hydratePage(ctx, func(ctx context.Context) (*Page[uuid.UUID], error) {
		return q.store.PageMutualFriends(ctx, callerID, otherID, p)
	})
}

// Suggestions returns up to limit friends-of-friends ranked by shared friends.
func (q *QueryService) Suggestions(ctx context.Context, callerID uuid.UUID, limit int) ([]*SuggestedProfile, error) {
	if limit <= 0 {
		return []*SuggestedProfile{}, nil
	}

	ctx, cancel := withStoreTimeout(ctx, q.timeout)
	defer cancel()

	log := logger.FromContext(ctx)

	ranked, hit, err := q.cache.Get(ctx, callerID, limit)
	if err != nil {
		log.Warn().Err(err).Msg("Suggestion cache read failed")
	}
	if hit {
		suggestionCacheTotal.WithLabelValues("hit").Inc()
	} else {
		suggestionCacheTotal.WithLabelValues("miss").Inc()
		ranked, err = q.store.RankedSuggestions(ctx, callerID, limit)
		if err != nil {
			return nil, storeFailure(err)
		}
		if err := q.cache.Set(ctx, callerID, limit, ranked); err != nil {
			log.Warn().Err(err).Msg("Suggestion cache write failed")
		}
	}

	ids := make([]uuid.UUID, len(ranked))
	for i, s := range ranked {
		ids[i] = s.ProfileID
	}
	found, err := q.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*SuggestedProfile, 0, len(ranked))
	for _, s := range ranked {
		p, ok := found[s.ProfileID]
		if !ok {
			continue
		}
		out = append(out, &SuggestedProfile{Profile: profile.SummaryFromEntity(p), MutualFriends: s.MutualCount})
	}
	return out, nil
}

// Status reports every edge between caller and other.
func (q *QueryService) Status(ctx context.Context, callerID, otherID uuid.UUID) (*RelationshipStatus, error) {
	if callerID == otherID {
		return nil, ErrSelfRelationship
	}

	ctx, cancel := withStoreTimeout(ctx, q.timeout)
	defer cancel()

	if err := lookupProfile(ctx, q.profiles, otherID); err != nil {
		return nil, err
	}

	var outReq, inReq, outFollow, inFollow *Edge
	g, gctx := errgroup.WithContext(ctx)
	find := func(dst **Edge, sender, receiver uuid.UUID, kind EdgeKind) {
		g.Go(func() error {
			edge, err := q.store.FindEdge(gctx, sender, receiver, kind)
			*dst = edge
			return err
		})
	}
	find(&outReq, callerID, otherID, KindFriendRequest)
	find(&inReq, otherID, callerID, KindFriendRequest)
	find(&outFollow, callerID, otherID, KindFollow)
	find(&inFollow, otherID, callerID, KindFollow)
	if err := g.Wait(); err != nil {
		return nil, storeFailure(err)
	}

	return &RelationshipStatus{
		ProfileID:       otherID,
		Friends:         outReq.IsAccepted() || inReq.IsAccepted(),
		RequestSent:     outReq.IsPending(),
		RequestReceived: inReq.IsPending(),
		Following:       outFollow != nil,
		FollowedBy:      inFollow != nil,
	}, nil
}

// StatusByUsername resolves username through the directory, then reports Status.
func (q *QueryService) StatusByUsername(ctx context.Context, callerID uuid.UUID, username string) (*RelationshipStatus, error) {
	p, err := q.profiles.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, fmt.Errorf("%w: profile lookup: %w", ErrStoreUnavailable, err)
	}
	return q.Status(ctx, callerID, p.ID)
}

type pageFunc func(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error)

func (q *QueryService) userPage(ctx context.Context, userID uuid.UUID, p Pagination, fetch pageFunc) (*Page[*profile.Summary], error) {
	ctx, cancel := withStoreTimeout(ctx, q.timeout)
	defer cancel()

	if err := lookupProfile(ctx, q.profiles, userID); err != nil {
		return nil, err
	}
	return q.hydratePage(ctx, func(ctx context.Context) (*Page[uuid.UUID], error) {
		return fetch(ctx, userID, p)
	})
}

func (q *QueryService) hydratePage(ctx context.Context, fetch func(ctx context.Context) (*Page[uuid.UUID], error)) (*Page[*profile.Summary], error) {
	ids, err := fetch(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}

	found, err := q.lookup(ctx, ids.Items)
	if err != nil {
		return nil, err
	}

	page := &Page[*profile.Summary]{Items: make([]*profile.Summary, 0, len(ids.Items)), Total: ids.Total}
	for _, id := range ids.Items {
		if p, ok := found[id]; ok {
			page.Items = append(page.Items, profile.SummaryFromEntity(p))
		}
	}
	return page, nil
}

// lookup batches the directory call. A directory failure fails the whole query.
func (q *QueryService) lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*profile.Profile, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*profile.Profile{}, nil
	}
	found, err := q.profiles.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: hydrate profiles: %w", ErrStoreUnavailable, err)
	}
	if missing := len(ids) - len(found); missing > 0 {
		logger.FromContext(ctx).Warn().Int("missing", missing).Msg("Relationship edges reference unknown profiles")
	}
	return found, nil
}
