package domain

type LikeTargetType string

const (
	LikeTargetProduct LikeTargetType = "PRODUCT"
	LikeTargetBrand   LikeTargetType = "BRAND"
)

// LikeSummary is an optimistically versioned counter row. Writers read the
// version, apply the delta, and write back only if the version is unchanged.
type LikeSummary struct {
	TargetID   string         `json:"target_id"`
	TargetType LikeTargetType `json:"target_type"`
	LikeCount  int64          `json:"like_count"`
	Version    int64          `json:"-"`
}

// Apply returns the counter after delta, rejecting a decrement below zero.
func (s LikeSummary) Apply(delta int64) (int64, error) {
	next := s.LikeCount + delta
	if next < 0 {
		return 0, ErrInvalidAmount
	}
	return next, nil
}
