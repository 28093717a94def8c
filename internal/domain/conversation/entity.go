package conversation

import (
	"sort"
	"strings"

	"duochat/internal/domain/user"

	"github.com/google/uuid"
)

// Key is the order-independent identifier of the conversation between a and b.
// Either participant derives the same value.
func Key(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

// Summary is one sidebar row for a viewer. It is derived from the message
// store on demand and never persisted.
type Summary struct {
	Peer        user.Profile `json:"peer"`
	UnseenCount int64        `json:"unseenCount"`
	LastMessage string       `json:"lastMessage"`
}
