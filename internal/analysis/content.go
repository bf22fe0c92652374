package analysis

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Raw metric keys produced by ContentAnalyzer.
const (
	MetricEmotionalIntensity = "emotional_intensity"
	MetricPositiveHits       = "positive_hits"
	MetricNegativeHits       = "negative_hits"
	MetricAuthoritySignals   = "authority_signals"
	MetricStructuralScore    = "structural_score"
	MetricHasQuestion        = "has_question"
	MetricHasList            = "has_list"
	MetricHasMedia           = "has_media"
	MetricOptimalLength      = "optimal_length"
	MetricHasCTA             = "has_call_to_action"
	MetricContentTypeScore   = "content_type_score"
	MetricEngagementTriggers = "engagement_triggers"
	MetricSpecificityScore   = "specificity_score"
	MetricNumericTokens      = "numeric_tokens"
	MetricContentScore       = "content_score"
	MetricViralFormula       = "viral_formula"
	MetricTextLength         = "text_length"
	MetricHashtagCount       = "hashtag_count"
	MetricMentionCount       = "mention_count"
	MetricMediaCount         = "media_count"

	LabelContentType = "content_type"
)

var (
	numberPattern     = regexp.MustCompile(`\b\d+(?:[.,]\d+)*\b`)
	percentPattern    = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)
	currencyPattern   = regexp.MustCompile(`(?i)[$€£]\s?\d[\d,]*(?:\.\d+)?[kmb]?|\b\d[\d,]*(?:\.\d+)?\s?(?:usd|eur|dollars|euros)\b`)
	datePattern       = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}\b|\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b|\b(?:19|20)\d{2}\b`)
	listPattern       = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*•])\s+\S`)
	specificityRegexp = []*regexp.Regexp{numberPattern, percentPattern, currencyPattern, datePattern}
)

// ContentConfig tunes ContentAnalyzer.
type ContentConfig struct {
	Lexicon         Lexicon
	MinOptimalChars int
	MaxOptimalChars int

	EmotionWeight     float64
	StructuralWeight  float64
	ContentTypeWeight float64
	TriggerWeight     float64
	AuthorityWeight   float64

	FormulaSpecificity float64
	FormulaEmotion     float64
	FormulaAuthority   float64

	ContentScoreBlend float64
	FormulaBlend      float64
}

func DefaultContentConfig() ContentConfig {
	return ContentConfig{
		Lexicon:            DefaultLexicon(),
		MinOptimalChars:    100,
		MaxOptimalChars:    300,
		EmotionWeight:      0.30,
		StructuralWeight:   0.20,
		ContentTypeWeight:  0.20,
		TriggerWeight:      0.20,
		AuthorityWeight:    0.10,
		FormulaSpecificity: 0.40,
		FormulaEmotion:     0.35,
		FormulaAuthority:   0.25,
		ContentScoreBlend:  0.6,
		FormulaBlend:       0.4,
	}
}

// ContentInput is everything ContentAnalyzer looks at.
type ContentInput struct {
	Text       string
	MediaCount int
	Hashtags   []string
	Mentions   []string
	URLs       []string
}

func ContentInputFrom(p types.Post) ContentInput {
	return ContentInput{
		Text:       p.Text,
		MediaCount: p.MediaCount,
		Hashtags:   p.Hashtags,
		Mentions:   p.Mentions,
		URLs:       p.URLs,
	}
}

// ContentAnalyzer scores the text and attachments of a post.
type ContentAnalyzer struct {
	cfg ContentConfig
}

func NewContentAnalyzer(cfg ContentConfig) *ContentAnalyzer {
	return &ContentAnalyzer{cfg: cfg}
}

func (c *ContentAnalyzer) Name() string { return ComponentContent }

func (c *ContentAnalyzer) Score(in ContentInput) ScoreComponent {
	words := tokenize(strings.ToLower(in.Text))
	lex := c.cfg.Lexicon

	pos := words.hits(lex.PositiveEmotion)
	neg := words.hits(lex.NegativeEmotion)
	exclaims := math.Min(float64(strings.Count(in.Text, "!")), 2)
	emotional := clamp01(float64(pos+neg)/3 + 0.1*exclaims)

	authority := clamp01(float64(words.hits(lex.Authority)) / 3)

	hasQuestion := strings.Contains(in.Text, "?")
	hasList := listPattern.MatchString(in.Text)
	hasMedia := in.MediaCount > 0
	length := utf8.RuneCountInString(in.Text)
	optimalLength := length >= c.cfg.MinOptimalChars && length <= c.cfg.MaxOptimalChars
	hasCTA := words.hits(lex.Action) > 0
	structural := 0.0
	for _, ok := range []bool{hasQuestion, hasList, hasMedia, optimalLength, hasCTA} {
		if ok {
			structural += 0.2
		}
	}
	structural = clamp01(structural)

	contentType, typeScore := c.contentType(words)
	triggers := c.engagementTriggers(words, in.Hashtags)
	numeric := countNumericSpans(in.Text)
	specificity := specificityScore(numeric)

	contentScore := c.cfg.EmotionWeight*emotional +
		c.cfg.StructuralWeight*structural +
		c.cfg.ContentTypeWeight*typeScore +
		c.cfg.TriggerWeight*triggers +
		c.cfg.AuthorityWeight*authority
	formula := c.cfg.FormulaSpecificity*specificity +
		c.cfg.FormulaEmotion*emotional +
		c.cfg.FormulaAuthority*authority
	probability := calibrated(c.cfg.ContentScoreBlend*contentScore + c.cfg.FormulaBlend*formula)

	return ScoreComponent{
		Name: ComponentContent,
		RawMetrics: map[string]float64{
			MetricEmotionalIntensity: emotional,
			MetricPositiveHits:       float64(pos),
			MetricNegativeHits:       float64(neg),
			MetricAuthoritySignals:   authority,
			MetricStructuralScore:    structural,
			MetricHasQuestion:        boolMetric(hasQuestion),
			MetricHasList:            boolMetric(hasList),
			MetricHasMedia:           boolMetric(hasMedia),
			MetricOptimalLength:      boolMetric(optimalLength),
			MetricHasCTA:             boolMetric(hasCTA),
			MetricContentTypeScore:   typeScore,
			MetricEngagementTriggers: triggers,
			MetricSpecificityScore:   specificity,
			MetricNumericTokens:      float64(numeric),
			MetricContentScore:       clamp01(contentScore),
			MetricViralFormula:       clamp01(formula),
			MetricTextLength:         float64(length),
			MetricHashtagCount:       float64(len(in.Hashtags)),
			MetricMentionCount:       float64(len(in.Mentions)),
			MetricMediaCount:         float64(in.MediaCount),
			MetricViralProbability:   probability,
		},
		Labels:          map[string]string{LabelContentType: contentType},
		NormalizedScore: clamp01(probability),
	}
}

func (c *ContentAnalyzer) contentType(words wordStream) (string, float64) {
	best, bestHits := ContentTypeGeneral, 0
	for _, name := range contentTypeOrder {
		hits := words.hits(c.cfg.Lexicon.ContentTypes[name])
		if hits > bestHits {
			best, bestHits = name, hits
		}
	}
	return best, clamp01(float64(bestHits) / 2)
}

func (c *ContentAnalyzer) engagementTriggers(words wordStream, hashtags []string) float64 {
	trending := 0
	for _, h := range hashtags {
		for _, t := range c.cfg.Lexicon.TrendingHashtags {
			if h == t {
				trending++
				break
			}
		}
	}
	score := math.Min(0.2*float64(trending), 0.4)
	if words.hits(c.cfg.Lexicon.Urgency) > 0 {
		score += 0.3
	}
	if words.hits(c.cfg.Lexicon.Controversy) > 0 {
		score += 0.3
	}
	return clamp01(score)
}

// specificityScore rewards concrete figures, with a bonus for a moderate amount of them.
func specificityScore(count int) float64 {
	score := math.Min(float64(count)/5, 1) * 0.7
	if count >= 2 && count <= 5 {
		score += 0.3
	}
	return clamp01(score)
}

// countNumericSpans counts distinct regions of text matched by any of the
// specificity patterns, so "50%" or "$1,200" count once.
func countNumericSpans(text string) int {
	var spans [][]int
	for _, re := range specificityRegexp {
		spans = append(spans, re.FindAllStringIndex(text, -1)...)
	}
	if len(spans) == 0 {
		return 0
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	count, end := 1, spans[0][1]
	for _, s := range spans[1:] {
		if s[0] >= end {
			count++
			end = s[1]
		} else if s[1] > end {
			end = s[1]
		}
	}
	return count
}

// wordStream is the text split into lowercase words, in order and counted.
type wordStream struct {
	words  []string
	counts map[string]int
}

func tokenize(lower string) wordStream {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
	ws := wordStream{words: make([]string, 0, len(fields)), counts: make(map[string]int, len(fields))}
	for _, f := range fields {
		if w := strings.Trim(f, "'-"); w != "" {
			ws.words = append(ws.words, w)
			ws.counts[w]++
		}
	}
	return ws
}

// hits counts entries on word boundaries. Multi-word entries must appear as
// consecutive words, so "when i" never matches "when it".
func (ws wordStream) hits(entries []string) int {
	total := 0
	for _, e := range entries {
		parts := strings.Fields(e)
		if len(parts) == 1 {
			total += ws.counts[parts[0]]
			continue
		}
		total += ws.phrase(parts)
	}
	return total
}

func (ws wordStream) phrase(parts []string) int {
	n := 0
	for i := 0; i+len(parts) <= len(ws.words); i++ {
		match := true
		for j, p := range parts {
			if ws.words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}
