package hybrid

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/analysis"
)

func (c *Combiner) mergeRecommendations(rule []analysis.Recommendation, mlProb, mlConf float64, sentiment *SentimentScore) []analysis.Recommendation {
	var out []analysis.Recommendation

	if mlConf > c.cfg.MLHighConfidence {
		switch {
		case mlProb > c.cfg.MLHighProbability:
			out = append(out, analysis.Recommendation{
				Type:     analysis.RecModel,
				Priority: analysis.PriorityHigh,
				Text:     "The model sees strong viral potential: publish now and be ready to engage with replies",
				Impact:   "capitalize on momentum",
			})
		case mlProb < c.cfg.MLLowProbability:
			out = append(out, analysis.Recommendation{
				Type:     analysis.RecModel,
				Priority: analysis.PriorityHigh,
				Text:     "The model rates this post unlikely to spread: rework the hook before publishing",
				Impact:   "avoid a low-reach post",
			})
		}
	}

	seen := make(map[string]struct{}, len(rule))
	for _, r := range out {
		seen[strings.ToLower(r.Text)] = struct{}{}
	}
	add := func(r analysis.Recommendation) {
		key := strings.ToLower(r.Text)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}

	for _, r := range rule {
		add(r)
	}
	if sentiment != nil {
		for _, s := range sentiment.Suggestions {
			if strings.TrimSpace(s) == "" {
				continue
			}
			add(analysis.Recommendation{Type: analysis.RecContent, Priority: analysis.PriorityMedium, Text: s})
		}
	}

	// model-driven items stay first; the rest are ordered by priority
	head := 0
	for head < len(out) && out[head].Type == analysis.RecModel {
		head++
	}
	analysis.SortRecommendations(out[head:])
	return out
}

func mlInsights(mlProb, mlConf float64, sentiment *SentimentScore, agreement float64) []string {
	insights := []string{
		fmt.Sprintf("Model estimate %.0f%% with %.0f%% confidence", mlProb*100, mlConf*100),
	}
	if sentiment != nil {
		insights = append(insights, fmt.Sprintf("External content score %.0f/100", sentiment.Score))
	}
	if agreement >= 0.9 {
		insights = append(insights, "Rule-based and learned signals strongly agree")
	} else if agreement < 0.6 {
		insights = append(insights, "Signals disagree; treat this estimate with caution")
	}
	return insights
}

// mergeInsights concatenates in order and drops exact duplicates.
func mergeInsights(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
