package analysis

// Scorer turns a narrow, scorer-specific input into a ScoreComponent.
// Implementations are pure and safe for concurrent use.
type Scorer[T any] interface {
	Name() string
	Score(in T) ScoreComponent
}
