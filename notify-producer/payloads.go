// Package notifyproducer builds notification events for the social domain
// and publishes them. Target users are resolved here, before publishing, so
// the notification service never reads the social datastore.
package notifyproducer

import (
	"time"
	"unicode/utf8"
)

// PreviewLength is the maximum comment body length carried in a notification.
const PreviewLength = 100

// Preview truncates a comment body to PreviewLength characters.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLength])
}

type PostAdded struct {
	EventType string    `json:"eventType"`
	PostID    int64     `json:"postId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"sentAt"`
}

type CommentAdded struct {
	EventType           string    `json:"eventType"`
	PostID              int64     `json:"postId"`
	CommentID           int64     `json:"commentId"`
	PostUserID          string    `json:"postUserId"`
	CommentUserID       string    `json:"commentUserId"`
	CommentUserUsername string    `json:"commentUserUsername"`
	CommentCreatedAt    time.Time `json:"commentCreatedAt"`
	CommentBody         string    `json:"commentBody"`
}

type SubCommentAdded struct {
	EventType                string    `json:"eventType"`
	PostID                   int64     `json:"postId"`
	PostUserID               string    `json:"-"`
	ParentCommentID          int64     `json:"parentCommentId"`
	ChildCommentID           int64     `json:"childCommentId"`
	ParentCommentUserID      string    `json:"parentCommentUserId"`
	ChildCommentUserID       string    `json:"childCommentUserId"`
	ChildCommentUserUsername string    `json:"childCommentUserUsername"`
	ChildCommentCreatedAt    time.Time `json:"childCommentCreatedAt"`
	ChildCommentBody         string    `json:"childCommentBody"`
}

type PostLike struct {
	EventType      string    `json:"eventType"`
	PostID         int64     `json:"postId"`
	PostUserID     string    `json:"postUserId"`
	PostLikeUserID string    `json:"postLikeUserId"`
	LikedAt        time.Time `json:"likedAt"`
}

type CommentLike struct {
	EventType         string    `json:"eventType"`
	CommentID         int64     `json:"commentId"`
	CommentUserID     string    `json:"commentUserId"`
	CommentLikeUserID string    `json:"commentLikeUserId"`
	LikedAt           time.Time `json:"likedAt"`
}
