package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Recommendation types.
const (
	RecContent    = "content"
	RecFormat     = "format"
	RecMedia      = "media"
	RecTiming     = "timing"
	RecHashtags   = "hashtags"
	RecAudience   = "audience"
	RecEngagement = "engagement"
	RecModel      = "model"
)

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// SortRecommendations orders by priority, keeping insertion order within a priority.
func SortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
	})
}

func recommendationsFor(p types.Post, velocity, authority, content, timing ScoreComponent) []Recommendation {
	var recs []Recommendation
	add := func(typ string, pr Priority, impact, text string) {
		recs = append(recs, Recommendation{Type: typ, Priority: pr, Text: text, Impact: impact})
	}

	if !timing.Flag(MetricIsOptimalTime) {
		text := "Schedule the post between 12:00 and 16:00 UTC on a Tuesday, Wednesday or Thursday"
		if next := timing.Label(LabelNextOptimalAt); next != "" {
			text = fmt.Sprintf("Schedule the post for the next peak window starting %s", next)
		}
		add(RecTiming, PriorityHigh, "up to 3.6x reach", text)
	}
	if velocity.Flag(MetricIsEarlyWindow) && velocity.NormalizedScore < 0.3 {
		add(RecEngagement, PriorityHigh, "early momentum",
			"Reply to early comments and reshare within the first two hours to build momentum")
	}
	if content.Metric(MetricSpecificityScore) < 0.3 {
		add(RecContent, PriorityMedium, "+specificity",
			"Add concrete numbers, percentages or dates to make the claim specific")
	}
	if content.Metric(MetricEmotionalIntensity) < 0.3 {
		add(RecContent, PriorityMedium, "+emotional resonance",
			"Use more emotionally charged language to make readers react")
	}
	if !content.Flag(MetricHasMedia) {
		add(RecMedia, PriorityMedium, "+visual engagement", "Attach an image or video")
	}
	if content.Metric(MetricStructuralScore) < 0.4 {
		add(RecFormat, PriorityLow, "+readability",
			"Structure the post with a question, a short list or a clear call to action")
	}
	switch n := len(p.Hashtags); {
	case n == 0:
		add(RecHashtags, PriorityLow, "+discoverability", "Add one to three relevant hashtags")
	case n > 5:
		add(RecHashtags, PriorityLow, "-spam signal", "Trim hashtags to the three most relevant")
	}
	if authority.Metric(MetricEngagementRateScore) < 0.4 && p.Creator.FollowerCount > 0 {
		add(RecAudience, PriorityLow, "+audience quality",
			"Grow engagement rate by interacting with followers before chasing reach")
	}

	SortRecommendations(recs)
	return recs
}

// HeadlineInsight summarizes a final probability. It always leads Insights.
func HeadlineInsight(probability float64) string {
	return fmt.Sprintf("Viral probability %.0f%% (%s)", probability*100, strings.ReplaceAll(string(CategoryFor(probability)), "_", " "))
}

func insightsFor(probability float64, velocity, authority, content, timing ScoreComponent) []string {
	insights := []string{HeadlineInsight(probability)}
	if velocity.Flag(MetricIsViralVelocity) {
		insights = append(insights, fmt.Sprintf("Engagement velocity of %.0f interactions/hour exceeds the viral threshold",
			velocity.Metric(MetricBasicVelocity)))
	}
	if velocity.Metric(MetricEarlyDetection) > 0 {
		insights = append(insights, "Early traction detected within the first two hours")
	}
	if authority.Flag(MetricIsOptimalRange) {
		insights = append(insights, "Follower count sits in the 50K-100K optimal range")
	}
	if tier := authority.Label(LabelAuthorityTier); tier != "" {
		insights = append(insights, fmt.Sprintf("Creator authority tier: %s", tier))
	}
	if timing.Flag(MetricIsOptimalTime) {
		insights = append(insights, fmt.Sprintf("Posting inside a peak engagement window (x%.1f)",
			timing.Metric(MetricCurrentMultiplier)))
	}
	if ct := content.Label(LabelContentType); ct != "" && ct != ContentTypeGeneral {
		insights = append(insights, fmt.Sprintf("Content reads as %s", strings.ReplaceAll(ct, "_", " ")))
	}
	return insights
}
