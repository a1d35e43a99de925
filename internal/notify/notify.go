// internal/notify/notify.go
//
// Platform announcement collaborator. The hosting platform owns comment and
// post creation; the game only hands it text. Every call is best effort and
// fire-at-most-once per trigger: callers log failures and keep going, so a
// missed announcement never fails the game operation that triggered it.

package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// Notifier posts announcements to the hosting platform.
type Notifier interface {
	// SubmitComment posts a comment under an existing post.
	SubmitComment(ctx context.Context, postID, text string) error

	// SubmitPost creates a new post in a community and returns its id.
	SubmitPost(ctx context.Context, community, title, text string) (string, error)
}

// logNotifier is the default implementation: it records announcements in the
// server log. Deployments embedded in a platform swap in a real client.
type logNotifier struct{}

// NewLog returns the log-backed Notifier.
func NewLog() Notifier {
	return logNotifier{}
}

func (logNotifier) SubmitComment(ctx context.Context, postID, text string) error {
	log.Info().Str("postId", postID).Str("text", text).Msg("announcement comment")
	return nil
}

func (logNotifier) SubmitPost(ctx context.Context, community, title, text string) (string, error) {
	id := "post_" + randomID()
	log.Info().Str("community", community).Str("postId", id).Str("title", title).Msg("announcement post")
	return id, nil
}

// randomID returns a compact 16-hex-char identifier.
func randomID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
