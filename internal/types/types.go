package types

import (
	"sort"
	"strings"
	"time"
)

const (
	// DefaultTimezone is used when a post does not name a target timezone.
	DefaultTimezone = "UTC"
	// DefaultAudience is used when a post does not name an audience type.
	DefaultAudience = "general"
)

// InteractionPoint is a single observation of a post's cumulative interaction count.
type InteractionPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     float64   `json:"count"`
}

// RecentPost summarizes one of the creator's earlier posts.
type RecentPost struct {
	Timestamp    time.Time `json:"timestamp"`
	Interactions float64   `json:"interactions"`
}

// CreatorProfile describes the account that published a post.
type CreatorProfile struct {
	FollowerCount   float64      `json:"follower_count"`
	FollowingCount  float64      `json:"following_count"`
	PostCount       float64      `json:"post_count"`
	AvgInteractions float64      `json:"avg_interactions"`
	ViralPostsCount float64      `json:"viral_posts_count"`
	AccountAgeDays  float64      `json:"account_age_days"`
	Verified        bool         `json:"verified"`
	BioKeywords     []string     `json:"bio_keywords,omitempty"`
	RecentPosts     []RecentPost `json:"recent_posts,omitempty"`
}

// PostSignal is the raw prediction input as received at the system boundary.
// Every field is optional.
type PostSignal struct {
	Text               string             `json:"text"`
	MediaCount         int                `json:"media_count"`
	Hashtags           []string           `json:"hashtags,omitempty"`
	Mentions           []string           `json:"mentions,omitempty"`
	URLs               []string           `json:"urls,omitempty"`
	CreatedTime        *time.Time         `json:"created_time,omitempty"`
	CurrentTime        *time.Time         `json:"current_time,omitempty"`
	TargetTime         *time.Time         `json:"target_time,omitempty"`
	Interactions       float64            `json:"interactions"`
	InteractionHistory []InteractionPoint `json:"interaction_history,omitempty"`
	Creator            *CreatorProfile    `json:"creator,omitempty"`
	TargetTimezone     string             `json:"target_timezone,omitempty"`
	AudienceType       string             `json:"audience_type,omitempty"`
}

// Post is a PostSignal with every default applied. Scorers only ever see a Post.
type Post struct {
	Text               string
	MediaCount         int
	Hashtags           []string
	Mentions           []string
	URLs               []string
	CreatedAt          time.Time
	Now                time.Time
	TargetTime         time.Time
	Interactions       float64
	InteractionHistory []InteractionPoint
	Creator            CreatorProfile
	TargetTimezone     string
	AudienceType       string
}

// WithDefaults resolves the optional fields of a signal against the given clock.
// Missing timestamps fall back to now, negative counts to zero, and the
// interaction history is sorted by time.
func (p PostSignal) WithDefaults(now time.Time) Post {
	post := Post{
		Text:           p.Text,
		MediaCount:     nonNegativeInt(p.MediaCount),
		Hashtags:       normalizeTags(p.Hashtags, "#"),
		Mentions:       normalizeTags(p.Mentions, "@"),
		URLs:           append([]string(nil), p.URLs...),
		Now:            now.UTC(),
		Interactions:   nonNegative(p.Interactions),
		TargetTimezone: strings.TrimSpace(p.TargetTimezone),
		AudienceType:   strings.ToLower(strings.TrimSpace(p.AudienceType)),
	}

	if p.CurrentTime != nil && !p.CurrentTime.IsZero() {
		post.Now = p.CurrentTime.UTC()
	}
	post.CreatedAt = post.Now
	if p.CreatedTime != nil && !p.CreatedTime.IsZero() {
		post.CreatedAt = p.CreatedTime.UTC()
	}
	if post.CreatedAt.After(post.Now) {
		post.CreatedAt = post.Now
	}
	post.TargetTime = post.Now
	if p.TargetTime != nil && !p.TargetTime.IsZero() {
		post.TargetTime = p.TargetTime.UTC()
	}

	if post.TargetTimezone == "" {
		post.TargetTimezone = DefaultTimezone
	}
	if post.AudienceType == "" {
		post.AudienceType = DefaultAudience
	}

	if len(p.InteractionHistory) > 0 {
		history := make([]InteractionPoint, 0, len(p.InteractionHistory))
		for _, point := range p.InteractionHistory {
			if point.Timestamp.IsZero() {
				continue
			}
			history = append(history, InteractionPoint{Timestamp: point.Timestamp.UTC(), Count: nonNegative(point.Count)})
		}
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].Timestamp.Before(history[j].Timestamp)
		})
		post.InteractionHistory = history
	}

	if p.Creator != nil {
		post.Creator = p.Creator.withDefaults()
	}

	return post
}

// AgeHours returns the post age in hours without any floor applied.
func (p Post) AgeHours() float64 {
	return p.Now.Sub(p.CreatedAt).Hours()
}

func (c CreatorProfile) withDefaults() CreatorProfile {
	out := CreatorProfile{
		FollowerCount:   nonNegative(c.FollowerCount),
		FollowingCount:  nonNegative(c.FollowingCount),
		PostCount:       nonNegative(c.PostCount),
		AvgInteractions: nonNegative(c.AvgInteractions),
		ViralPostsCount: nonNegative(c.ViralPostsCount),
		AccountAgeDays:  nonNegative(c.AccountAgeDays),
		Verified:        c.Verified,
	}
	for _, kw := range c.BioKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out.BioKeywords = append(out.BioKeywords, kw)
		}
	}
	for _, rp := range c.RecentPosts {
		out.RecentPosts = append(out.RecentPosts, RecentPost{Timestamp: rp.Timestamp.UTC(), Interactions: nonNegative(rp.Interactions)})
	}
	return out
}

func normalizeTags(tags []string, prefix string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		t = strings.TrimPrefix(t, prefix)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func nonNegativeInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
