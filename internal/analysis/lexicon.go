package analysis

// Lexicon holds the fixed word and phrase lists ContentAnalyzer counts hits against.
// All entries are lowercase; multi-word entries match consecutive words.
type Lexicon struct {
	PositiveEmotion  []string
	NegativeEmotion  []string
	Authority        []string
	Action           []string
	Urgency          []string
	Controversy      []string
	TrendingHashtags []string
	ContentTypes     map[string][]string
}

// Content type labels.
const (
	ContentTypeEducational  = "educational"
	ContentTypeControversy  = "controversial"
	ContentTypeStory        = "personal_story"
	ContentTypeNews         = "breaking_news"
	ContentTypeEntertaining = "entertainment"
	ContentTypeGeneral      = "general"
)

func DefaultLexicon() Lexicon {
	return Lexicon{
		PositiveEmotion: []string{
			"amazing", "incredible", "love", "awesome", "excited", "happy", "brilliant",
			"fantastic", "inspiring", "beautiful", "wow", "thrilled", "grateful", "proud",
			"best", "perfect", "stunning", "wonderful",
		},
		NegativeEmotion: []string{
			"terrible", "hate", "angry", "shocking", "awful", "worst", "disgusting",
			"outrageous", "scary", "sad", "furious", "disappointed", "horrible", "insane",
			"unbelievable", "broken",
		},
		Authority: []string{
			"research", "study", "data", "expert", "proven", "according to", "analysis",
			"report", "scientists", "evidence", "survey", "statistics", "official", "peer-reviewed",
		},
		Action: []string{
			"share", "retweet", "comment", "follow", "click", "subscribe", "reply",
			"tag a friend", "let me know", "check out", "join", "sign up", "read more",
		},
		Urgency: []string{
			"now", "today", "breaking", "urgent", "just in", "last chance", "limited",
			"hurry", "before it's gone", "deadline", "happening",
		},
		Controversy: []string{
			"unpopular opinion", "hot take", "controversial", "debate", "wrong", "myth",
			"nobody talks about", "overrated", "underrated", "truth",
		},
		TrendingHashtags: []string{
			"ai", "viral", "trending", "breaking", "tech", "news", "fyp", "crypto",
			"startup", "motivation", "sports", "music",
		},
		ContentTypes: map[string][]string{
			ContentTypeEducational: {
				"how to", "tips", "guide", "learn", "tutorial", "step by step", "thread", "explained", "lessons",
			},
			ContentTypeControversy: {
				"unpopular opinion", "hot take", "change my mind", "controversial", "disagree", "fight me",
			},
			ContentTypeStory: {
				"i was", "my journey", "story", "years ago", "i learned", "when i", "my experience",
			},
			ContentTypeNews: {
				"breaking", "just in", "announced", "update", "report", "confirmed", "official",
			},
			ContentTypeEntertaining: {
				"funny", "lol", "meme", "joke", "hilarious", "wait for it", "plot twist",
			},
		},
	}
}

// contentTypeOrder fixes the tie-break order when two categories score equally.
var contentTypeOrder = []string{
	ContentTypeEducational,
	ContentTypeControversy,
	ContentTypeStory,
	ContentTypeNews,
	ContentTypeEntertaining,
}
