package repository

import (
	"encoding/json"
	"fmt"

	"github.com/totemic/totemic-go/internal/model"
)

// Historical post documents exist in several near-duplicate field layouts
// left behind by earlier versions of the platform. This file is the single
// normalization boundary: any legacy layout is mapped to the canonical model
// here, so the engagement engine never branches on field-name variants.
//
// Known variants, canonical name first:
//
//	labels:            labels, totems, tags
//	likeHistory:       likeHistory, likes, history
//	crispness:         crispness, score
//	userId:            userId, uid, user
//	originalTimestamp: originalTimestamp, firstLikedAt, createdAt
//	lastUpdatedAt:     lastUpdatedAt, updatedAt, ts
//	isActive:          isActive, active
//	value:             value, weight

// DecodePostDoc parses a stored post document, tolerating legacy field
// layouts, and returns the canonical model.
func DecodePostDoc(postID string, doc []byte) (*model.Post, error) {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", postID, err)
	}

	post := &model.Post{PostID: postID}
	for _, ra := range pickList(raw, "answers") {
		answer := model.Answer{
			AnswerID: pickString(ra, "answerId", "id"),
		}
		for _, rl := range pickList(ra, "labels", "totems", "tags") {
			label := model.Label{
				Name:      pickString(rl, "name", "label"),
				Crispness: pickFloat(rl, 0, "crispness", "score"),
			}
			for _, re := range pickList(rl, "likeHistory", "likes", "history") {
				label.LikeHistory = append(label.LikeHistory, decodeEvent(re))
			}
			answer.Labels = append(answer.Labels, label)
		}
		post.Answers = append(post.Answers, answer)
	}
	return post, nil
}

// EncodePostDoc serializes a post in the canonical layout. Re-persisting a
// legacy document through decode/encode migrates it in place.
func EncodePostDoc(p *model.Post) ([]byte, error) {
	return json.Marshal(p)
}

func decodeEvent(re map[string]any) model.LikeEvent {
	e := model.LikeEvent{
		UserID:            pickString(re, "userId", "uid", "user"),
		OriginalTimestamp: pickInt(re, "originalTimestamp", "firstLikedAt", "createdAt"),
		LastUpdatedAt:     pickInt(re, "lastUpdatedAt", "updatedAt", "ts"),
		IsActive:          pickBool(re, "isActive", "active"),
		Value:             pickFloat(re, 1, "value", "weight"),
	}
	// Repair invariants older writers did not maintain.
	if e.OriginalTimestamp == 0 {
		e.OriginalTimestamp = e.LastUpdatedAt
	}
	if e.LastUpdatedAt < e.OriginalTimestamp {
		e.LastUpdatedAt = e.OriginalTimestamp
	}
	return e
}

func pickList(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		raw, ok := m[k].([]any)
		if !ok {
			continue
		}
		items := make([]map[string]any, 0, len(raw))
		for _, v := range raw {
			if item, ok := v.(map[string]any); ok {
				items = append(items, item)
			}
		}
		return items
	}
	return nil
}

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	return ""
}

func pickFloat(m map[string]any, fallback float64, keys ...string) float64 {
	for _, k := range keys {
		if f, ok := m[k].(float64); ok {
			return f
		}
	}
	return fallback
}

func pickInt(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if f, ok := m[k].(float64); ok {
			return int64(f)
		}
	}
	return 0
}

func pickBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if b, ok := m[k].(bool); ok {
			return b
		}
	}
	return false
}
