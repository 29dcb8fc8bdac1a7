package sources

import (
	"github.com/ObiAU/mentionwatch/internal/models"
)

const (
	// entryTimeLayout renders created_at the way the search API reports it.
	entryTimeLayout = "2006-01-02T15:04:05.000Z"
	entrySeparator  = "\n\n"
)

// ExtractAuthored builds the bucket for an authored query. Every tweet
// belongs to the tracked account, so all entries share one display name.
func ExtractAuthored(raw *models.RawResult) models.MessageBucket {
	bucket := models.MessageBucket{}
	if raw == nil || len(raw.Data) == 0 || len(raw.Includes.Users) == 0 {
		return bucket
	}

	users := indexUsers(raw.Includes.Users)
	for _, tweet := range raw.Data {
		user, ok := users[tweet.AuthorID]
		if !ok {
			user = raw.Includes.Users[0]
		}
		appendEntry(bucket, user.Name, tweet)
	}

	return bucket
}

// ExtractMentions builds the bucket for a mentions query. Tweets whose author
// has fewer than followerFloor followers, or whose author is missing from the
// includes table, are dropped.
func ExtractMentions(raw *models.RawResult, followerFloor int) models.MessageBucket {
	bucket := models.MessageBucket{}
	if raw == nil || len(raw.Data) == 0 {
		return bucket
	}

	users := indexUsers(raw.Includes.Users)
	for _, tweet := range raw.Data {
		user, ok := users[tweet.AuthorID]
		if !ok {
			continue
		}
		if user.PublicMetrics.FollowersCount < followerFloor {
			continue
		}
		appendEntry(bucket, user.Name, tweet)
	}

	return bucket
}

// Merge combines the two buckets of one account. Authored entries win when a
// display name appears in both.
func Merge(authored, mentions models.MessageBucket) models.MessageBucket {
	merged := make(models.MessageBucket, len(authored)+len(mentions))
	for name, text := range mentions {
		merged[name] = text
	}
	for name, text := range authored {
		merged[name] = text
	}
	return merged
}

func indexUsers(users []models.User) map[string]models.User {
	idx := make(map[string]models.User, len(users))
	for _, u := range users {
		idx[u.ID] = u
	}
	return idx
}

func appendEntry(bucket models.MessageBucket, name string, tweet models.Tweet) {
	entry := formatEntry(tweet)
	if existing, ok := bucket[name]; ok {
		bucket[name] = existing + entrySeparator + entry
		return
	}
	bucket[name] = entry
}

func formatEntry(tweet models.Tweet) string {
	return tweet.CreatedAt.UTC().Format(entryTimeLayout) + "\n" + tweet.Text
}
