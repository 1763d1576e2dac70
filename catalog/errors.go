// errors.go - Error types for the reward catalog.
package catalog

import (
	"errors"
	"fmt"

	"github.com/surveypoints/points-engine/points"
)

var (
	// ErrRewardNotFound is returned when the referenced reward doesn't exist.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrRewardExists is returned when creating a reward with a taken id.
	ErrRewardExists = errors.New("reward already exists")

	// ErrRewardUnavailable is returned when a reward cannot be redeemed:
	// inactive, suspended, discontinued, or out of stock.
	ErrRewardUnavailable = errors.New("reward unavailable")

	// ErrInvalidCost is returned when a reward's point cost is not positive.
	ErrInvalidCost = errors.New("cost_points must be positive")
)

// RewardUnavailableError reports why a reward cannot be redeemed.
type RewardUnavailableError struct {
	RewardID points.RewardID
	Status   Status
	Active   bool
}

func (e *RewardUnavailableError) Error() string {
	if !e.Active {
		return fmt.Sprintf("reward %s is inactive", e.RewardID)
	}
	return fmt.Sprintf("reward %s unavailable: %s", e.RewardID, e.Status)
}

func (e *RewardUnavailableError) Unwrap() error {
	return ErrRewardUnavailable
}
