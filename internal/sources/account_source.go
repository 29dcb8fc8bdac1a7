package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObiAU/mentionwatch/internal/models"
)

const (
	defaultMaxResults    = 25
	defaultFollowerFloor = 1000
)

// WindowTracker hands out per-account search windows.
type WindowTracker interface {
	Now() time.Time
	WindowFor(account models.TrackedAccount) models.TimeWindow
	Advance(account models.TrackedAccount, fetchStartedAt time.Time)
	Snapshot() map[models.TrackedAccount]time.Time
}

// SeenCache remembers tweet ids that were already delivered. Ids are kept
// until Prune is called with a time after the tweet's creation.
type SeenCache interface {
	HasMessage(id string) bool
	AddMessage(id string, createdAt time.Time)
	Prune(before time.Time) int
}

// TrackedAccountSet is the set of accounts one AccountSource watches.
type TrackedAccountSet map[models.TrackedAccount]struct{}

func (s TrackedAccountSet) Add(account models.TrackedAccount) bool {
	if _, ok := s[account]; ok {
		return false
	}
	s[account] = struct{}{}
	return true
}

// Sorted returns the members in a stable order.
func (s TrackedAccountSet) Sorted() []models.TrackedAccount {
	out := make([]models.TrackedAccount, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AccountSource polls a SearchProvider for every tracked account and returns
// the messages that are new since the account's window start.
type AccountSource struct {
	provider      models.SearchProvider
	tracker       WindowTracker
	accounts      TrackedAccountSet
	seen          SeenCache
	maxResults    int
	followerFloor int
	logger        zerolog.Logger
}

type AccountSourceOption func(*AccountSource)

func WithMaxResults(n int) AccountSourceOption {
	return func(s *AccountSource) { s.maxResults = n }
}

func WithFollowerFloor(n int) AccountSourceOption {
	return func(s *AccountSource) { s.followerFloor = n }
}

// WithSeenCache drops tweets already delivered in an earlier, overlapping window.
func WithSeenCache(c SeenCache) AccountSourceOption {
	return func(s *AccountSource) { s.seen = c }
}

func WithAccounts(set TrackedAccountSet) AccountSourceOption {
	return func(s *AccountSource) { s.accounts = set }
}

func WithLogger(l zerolog.Logger) AccountSourceOption {
	return func(s *AccountSource) { s.logger = l }
}

func NewAccountSource(provider models.SearchProvider, tracker WindowTracker, opts ...AccountSourceOption) *AccountSource {
	s := &AccountSource{
		provider:      provider,
		tracker:       tracker,
		accounts:      TrackedAccountSet{},
		maxResults:    defaultMaxResults,
		followerFloor: defaultFollowerFloor,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAccount starts tracking an account. Blank and duplicate ids are ignored.
func (s *AccountSource) AddAccount(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	if s.accounts.Add(models.TrackedAccount(id)) {
		s.logger.Info().Str("account", id).Msg("tracking account")
	}
}

func (s *AccountSource) Accounts() []models.TrackedAccount {
	return s.accounts.Sorted()
}

// Parse runs one poll pass over all tracked accounts, one at a time. A failed
// fetch only affects its own account, whose window is then left unchanged.
func (s *AccountSource) Parse(ctx context.Context) models.AccountMessages {
	result := models.AccountMessages{}

	for _, account := range s.accounts.Sorted() {
		if ctx.Err() != nil {
			break
		}

		bucket, err := s.collect(ctx, account)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("account", string(account)).
				Bool("connectivity", IsConnectivityError(err)).
				Msg("fetch failed, skipping account this cycle")
			continue
		}
		if len(bucket) > 0 {
			result[account] = bucket
		}
	}

	s.pruneSeen()

	return result
}

func (s *AccountSource) collect(ctx context.Context, account models.TrackedAccount) (models.MessageBucket, error) {
	fetchStartedAt := s.tracker.Now()
	window := s.tracker.WindowFor(account)

	authoredRaw, err := s.provider.Fetch(ctx, account, window, s.maxResults, models.QueryAuthored)
	if err != nil {
		return nil, fmt.Errorf("authored query: %w", err)
	}
	mentionsRaw, err := s.provider.Fetch(ctx, account, window, s.maxResults, models.QueryMentions)
	if err != nil {
		return nil, fmt.Errorf("mentions query: %w", err)
	}

	authoredRaw = s.dropDelivered(authoredRaw, window)
	mentionsRaw = s.dropDelivered(mentionsRaw, window)

	authored := ExtractAuthored(authoredRaw)
	mentions := ExtractMentions(mentionsRaw, s.followerFloor)
	merged := Merge(authored, mentions)

	if len(merged) == 0 {
		return nil, nil
	}

	s.tracker.Advance(account, fetchStartedAt)
	s.markSeen(authoredRaw, fetchStartedAt)
	s.markSeen(mentionsRaw, fetchStartedAt)

	s.logger.Info().
		Str("account", string(account)).
		Int("authored", len(authored)).
		Int("mentions", len(mentions)).
		Time("window_start", window.Start).
		Msg("new messages")

	return merged, nil
}

// dropDelivered removes tweets created before the window start, whose ids may
// already have been pruned, and tweets whose ids are still in the seen cache.
func (s *AccountSource) dropDelivered(raw *models.RawResult, window models.TimeWindow) *models.RawResult {
	if raw == nil || len(raw.Data) == 0 {
		return raw
	}

	fresh := make([]models.Tweet, 0, len(raw.Data))
	for _, tweet := range raw.Data {
		if !tweet.CreatedAt.IsZero() && tweet.CreatedAt.Before(window.Start) {
			continue
		}
		if s.seen != nil && tweet.ID != "" && s.seen.HasMessage(tweet.ID) {
			continue
		}
		fresh = append(fresh, tweet)
	}

	out := *raw
	out.Data = fresh
	return &out
}

// markSeen records delivered ids under their creation time, or under the
// fetch start for tweets that carry none.
func (s *AccountSource) markSeen(raw *models.RawResult, fetchStartedAt time.Time) {
	if s.seen == nil || raw == nil {
		return
	}
	for _, tweet := range raw.Data {
		if tweet.ID == "" {
			continue
		}
		createdAt := tweet.CreatedAt
		if createdAt.IsZero() {
			createdAt = fetchStartedAt
		}
		s.seen.AddMessage(tweet.ID, createdAt)
	}
}

// pruneSeen drops ids of tweets created before the oldest window start of
// any tracked account: no later query can return them. While an account has
// no window yet nothing is pruned, since its first window reaches back a full
// lookback.
func (s *AccountSource) pruneSeen() {
	if s.seen == nil || len(s.accounts) == 0 {
		return
	}

	starts := s.tracker.Snapshot()
	var oldest time.Time
	for account := range s.accounts {
		start, ok := starts[account]
		if !ok {
			return
		}
		if oldest.IsZero() || start.Before(oldest) {
			oldest = start
		}
	}

	if n := s.seen.Prune(oldest); n > 0 {
		s.logger.Debug().Int("pruned", n).Time("before", oldest).Msg("pruned seen ids")
	}
}

func (s *AccountSource) GetName() string {
	return "twitter"
}
