package neural

import "math"

// Metrics summarizes predictions against a labelled set.
type Metrics struct {
	Samples        int     `json:"samples"`
	MSE            float64 `json:"mse"`
	Accuracy       float64 `json:"accuracy"`
	BinaryAccuracy float64 `json:"binary_accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// Accuracy counts a prediction as correct when it lies within tolerance of the
// target probability. Binary metrics threshold the prediction at 0.5 against the label.
func computeMetrics(predictions []float64, samples []Sample, tolerance float64) Metrics {
	m := Metrics{Samples: len(samples)}
	if len(samples) == 0 {
		return m
	}

	var sq float64
	var within, correct, tp, fp, fn int
	for i, s := range samples {
		p := predictions[i]
		d := p - s.TargetProbability
		sq += d * d
		if math.Abs(d) <= tolerance {
			within++
		}

		predicted := p >= 0.5
		actual := s.Label == 1
		switch {
		case predicted && actual:
			tp++
			correct++
		case predicted && !actual:
			fp++
		case !predicted && actual:
			fn++
		default:
			correct++
		}
	}

	n := float64(len(samples))
	m.MSE = sq / n
	m.Accuracy = float64(within) / n
	m.BinaryAccuracy = float64(correct) / n
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}
