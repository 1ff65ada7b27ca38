package relationships

import (
	"errors"

	"github.com/mwork/socialgraph-api/internal/domain/profile"
)

var (
	ErrUnauthenticated         = profile.ErrUnauthenticated
	ErrTargetNotFound          = errors.New("target profile not found")
	ErrSelfRelationship        = errors.New("cannot create a relationship with yourself")
	ErrAlreadyFriends          = errors.New("already friends")
	ErrRequestNotFound         = errors.New("friend request not found")
	ErrRequestAlreadyProcessed = errors.New("friend request already processed")
	ErrNotFriends              = errors.New("not friends")
	ErrStoreUnavailable        = errors.New("relationship store unavailable")
)
