package model

// User tiers. The tier decides the daily refresh allotment.
const (
	TierStandard = "standard"
	TierPremium  = "premium"
)

// RefreshQuota is a user's daily refresh allowance. The allowance resets when
// the calendar day of RefreshResetAt differs from the current day in the
// service's reference timezone, not on a rolling 24h window.
type RefreshQuota struct {
	UserID             string `json:"userId"`
	Tier               string `json:"tier"`
	RefreshesRemaining int    `json:"refreshesRemaining"`
	// RefreshResetAt is the epoch-millisecond time the quota last reset.
	RefreshResetAt int64 `json:"refreshResetAt"`
	// Version is the store's optimistic-concurrency token. Zero means the
	// record has never been persisted.
	Version uint64 `json:"-"`
}
