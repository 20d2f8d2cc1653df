package model

// LikeEvent is one user's like record on a label. Events are toggled, never
// deleted, so reactivation history survives an unlike.
type LikeEvent struct {
	UserID string `json:"userId"`
	// OriginalTimestamp is the epoch-millisecond time of the first like this
	// user ever recorded on the label.
	OriginalTimestamp int64 `json:"originalTimestamp"`
	// LastUpdatedAt is the epoch-millisecond time of the most recent
	// activation or refresh. Invariant: LastUpdatedAt >= OriginalTimestamp.
	LastUpdatedAt int64 `json:"lastUpdatedAt"`
	IsActive      bool  `json:"isActive"`
	// Value is the like weight. Currently always 1; kept for future weighting.
	Value float64 `json:"value"`
}

// Label is a totem attached to an answer. Name matching is case-sensitive
// and exact. Crispness holds the last-committed score; it is a cache of the
// decay model output and may be stale between commits.
type Label struct {
	Name        string      `json:"name"`
	LikeHistory []LikeEvent `json:"likeHistory"`
	Crispness   float64     `json:"crispness"`
}

// FindEvent returns a pointer to the like event for userID, or nil if the
// user has never liked this label. At most one event per user exists.
func (l *Label) FindEvent(userID string) *LikeEvent {
	for i := range l.LikeHistory {
		if l.LikeHistory[i].UserID == userID {
			return &l.LikeHistory[i]
		}
	}
	return nil
}

// AppendEvent records a first-ever like for userID and returns the new event.
func (l *Label) AppendEvent(userID string, now int64) *LikeEvent {
	l.LikeHistory = append(l.LikeHistory, LikeEvent{
		UserID:            userID,
		OriginalTimestamp: now,
		LastUpdatedAt:     now,
		IsActive:          true,
		Value:             1,
	})
	return &l.LikeHistory[len(l.LikeHistory)-1]
}

// LikeCount returns the number of currently active likes.
func (l *Label) LikeCount() int {
	n := 0
	for i := range l.LikeHistory {
		if l.LikeHistory[i].IsActive {
			n++
		}
	}
	return n
}

// Answer owns zero or more labels and is identified within its post by a
// stable id.
type Answer struct {
	AnswerID string  `json:"answerId"`
	Labels   []Label `json:"labels"`
}

// FindLabel returns the label with the given name, or nil.
func (a *Answer) FindLabel(name string) *Label {
	for i := range a.Labels {
		if a.Labels[i].Name == name {
			return &a.Labels[i]
		}
	}
	return nil
}

// Post is the mutation unit of the like ledger: labels are nested under
// answers under posts, and the store reads and writes the whole document
// atomically.
type Post struct {
	PostID  string   `json:"postId"`
	Answers []Answer `json:"answers"`
}

// FindAnswer returns the answer with the given id, or nil.
func (p *Post) FindAnswer(answerID string) *Answer {
	for i := range p.Answers {
		if p.Answers[i].AnswerID == answerID {
			return &p.Answers[i]
		}
	}
	return nil
}

// FindLabel locates a label within the post. With a non-empty answerID the
// lookup is exact; with an empty answerID the answers are scanned in order
// and the first label with a matching name wins.
func (p *Post) FindLabel(answerID, name string) (*Answer, *Label) {
	if answerID != "" {
		a := p.FindAnswer(answerID)
		if a == nil {
			return nil, nil
		}
		return a, a.FindLabel(name)
	}
	for i := range p.Answers {
		if l := p.Answers[i].FindLabel(name); l != nil {
			return &p.Answers[i], l
		}
	}
	return nil, nil
}
