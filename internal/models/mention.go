package models

import (
	"context"
	"time"
)

// TrackedAccount is the identifier of an account being watched, as understood
// by the search provider (a handle or numeric user id).
type TrackedAccount string

// QueryClass selects which relation to the tracked account a search covers.
type QueryClass int

const (
	QueryAuthored QueryClass = iota
	QueryMentions
)

func (q QueryClass) String() string {
	switch q {
	case QueryAuthored:
		return "authored"
	case QueryMentions:
		return "mentions"
	default:
		return "unknown"
	}
}

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type PublicMetrics struct {
	FollowersCount int `json:"followers_count"`
}

type User struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Username      string        `json:"username"`
	PublicMetrics PublicMetrics `json:"public_metrics"`
}

type Includes struct {
	Users []User `json:"users"`
}

type Meta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
}

// RawResult is one page of search results as returned by the provider.
type RawResult struct {
	Data     []Tweet  `json:"data"`
	Includes Includes `json:"includes"`
	Meta     Meta     `json:"meta"`
}

// MessageBucket maps an author display name to the concatenated entries that
// author produced within one window.
type MessageBucket map[string]string

// AccountMessages maps each tracked account to its merged bucket for a cycle.
// Accounts without messages are absent.
type AccountMessages map[TrackedAccount]MessageBucket

type SearchProvider interface {
	Fetch(ctx context.Context, account TrackedAccount, window TimeWindow, maxResults int, class QueryClass) (*RawResult, error)
}

type NotificationSink interface {
	Notify(ctx context.Context, messages AccountMessages)
	GetName() string
}

// Source yields the new messages of every account it tracks.
type Source interface {
	Parse(ctx context.Context) AccountMessages
	GetName() string
}
