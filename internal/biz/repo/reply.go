package repo

import "context"

// ReplyRequest carries everything the generation call needs.
type ReplyRequest struct {
	ChatID        string
	Transcript    string
	Profile       string
	Rules         string
	StyleExamples string
	RecentContext string
	IsStarter     bool
}

// ReplyGenerator is the opaque remote reply-generation interface.
// A failed call is non-fatal to the caller; it is never retried within the
// same event.
type ReplyGenerator interface {
	// GenerateReply produces reply text for the request
	GenerateReply(ctx context.Context, req *ReplyRequest) (string, error)
}
