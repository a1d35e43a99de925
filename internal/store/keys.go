// internal/store/keys.go
//
// Key builders for every logical record in the KV store. Keeping the
// layout in one place makes the storage schema auditable and keeps
// handlers from hand-assembling key strings.

package store

import "fmt"

// SessionKey addresses the per-post game session blob.
func SessionKey(postID string) string { return "game:" + postID }

// MapKey addresses a community's shared territory grid.
func MapKey(community string) string { return "sr:" + community + ":map" }

// PlotKey addresses the claim record for one map cell.
func PlotKey(community string, row, col int) string {
	return fmt.Sprintf("plot:%s:%d:%d", community, row, col)
}

// SolvedSetKey addresses a community's list of solved puzzle ids.
func SolvedSetKey(community string) string { return "sr:" + community + ":solvedPuzzles" }

// PointsKey addresses a user's echo-points account.
func PointsKey(username string) string { return "user_echo_points:" + username }

// PointsIndexKey addresses the list of usernames with points accounts.
func PointsIndexKey() string { return "user_echo_points:index" }

// PhraseDiscoveredKey marks a phrase text as discovered platform-wide.
func PhraseDiscoveredKey(text string) string { return "phrase:" + text + ":discovered" }

// SubmissionKey addresses a user-submitted puzzle record.
func SubmissionKey(puzzleID string) string { return "puzzle_submission:" + puzzleID }

// PendingKey addresses a community's pending submission id list.
func PendingKey(community string) string { return "pending_submissions:" + community }

// ApprovedKey addresses a community's approved submission id list.
func ApprovedKey(community string) string { return "approved_puzzles:" + community }

// RejectedKey addresses a community's rejected submission id list.
func RejectedKey(community string) string { return "rejected_puzzles:" + community }

// CreatorCreditsKey addresses a creator's denormalized credit summary.
func CreatorCreditsKey(username string) string { return "creator_credits:" + username }

// DailyPostKey records that a daily puzzle was posted for a date.
func DailyPostKey(community, date string) string {
	return "daily_post:" + community + ":" + date
}

// DailyPuzzleKey records which puzzle is the daily for a date.
func DailyPuzzleKey(community, date string) string {
	return "daily_puzzle:" + community + ":" + date
}
