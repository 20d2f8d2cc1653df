package model

// EngageResponse is the result of every mutating engagement call.
type EngageResponse struct {
	Success   bool    `json:"success"`
	IsActive  bool    `json:"isActive"`
	Crispness float64 `json:"crispness"`
	LikeCount int     `json:"likeCount"`
	// Attempts is how many commit attempts the engine made, for metrics.
	Attempts int `json:"-"`
}

// LabelView is a read-time projection of a label: crispness recomputed from
// the live history at ComputedAt, never the stored cache.
type LabelView struct {
	Name      string  `json:"name"`
	Crispness float64 `json:"crispness"`
	LikeCount int     `json:"likeCount"`
}

// AnswerView groups the label views of one answer.
type AnswerView struct {
	AnswerID string      `json:"answerId"`
	Labels   []LabelView `json:"labels"`
}

// PostResponse is the full read-time view of a post.
type PostResponse struct {
	PostID     string       `json:"postId"`
	Answers    []AnswerView `json:"answers"`
	ComputedAt int64        `json:"computedAt"`
}

// CrispnessResponse is the API response for a single label score read.
type CrispnessResponse struct {
	PostID     string  `json:"postId"`
	AnswerID   string  `json:"answerId"`
	Label      string  `json:"label"`
	Crispness  float64 `json:"crispness"`
	LikeCount  int     `json:"likeCount"`
	ComputedAt int64   `json:"computedAt"`
}

// HistoryResponse is the audit view of a label's like ledger, in insertion
// order. Order is irrelevant to scoring but relevant for audit.
type HistoryResponse struct {
	PostID   string      `json:"postId"`
	AnswerID string      `json:"answerId"`
	Label    string      `json:"label"`
	History  []LikeEvent `json:"history"`
}

// QuotaResponse is the API response for a user's refresh allowance. The
// values are projected through day rollover, so a stale stored record still
// reads as a full allowance on a new day.
type QuotaResponse struct {
	UserID             string `json:"userId"`
	Tier               string `json:"tier"`
	RefreshesRemaining int    `json:"refreshesRemaining"`
	RefreshResetAt     int64  `json:"refreshResetAt"`
}

// StatsResponse is the API response for global statistics.
type StatsResponse struct {
	TotalPosts      int `json:"totalPosts"`
	TotalUsers      int `json:"totalUsers"`
	ActiveUsers24h  int `json:"activeUsers24h"`
	PostsUpdated24h int `json:"postsUpdated24h"`
}

// SyncPostEntry is one changed post in a delta sync response. Labels maps
// "answerId/labelName" to the crispness computed at response time.
type SyncPostEntry struct {
	PostID    string             `json:"postId"`
	Labels    map[string]float64 `json:"labels"`
	UpdatedAt string             `json:"updatedAt"`
}

// SyncDeltaResponse lists posts whose like state changed since a timestamp.
type SyncDeltaResponse struct {
	Posts         []SyncPostEntry `json:"posts"`
	SyncTimestamp string          `json:"syncTimestamp"`
}

// SyncFullResponse is the complete crispness snapshot for cache priming.
type SyncFullResponse struct {
	Posts       []SyncPostEntry `json:"posts"`
	GeneratedAt string          `json:"generatedAt"`
}
