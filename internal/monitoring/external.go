package monitoring

import "time"

// ExternalCallObserver returns a callback that records one call to api in
// every sink that is non-nil.
func ExternalCallObserver(api string, metrics *Metrics, prom *Prometheus, logger *Logger) func(time.Duration, error) {
	return func(duration time.Duration, err error) {
		if metrics != nil {
			metrics.RecordExternalAPIRequest(api, err == nil)
		}
		if prom != nil {
			outcome := "success"
			if err != nil {
				outcome = "error"
			}
			prom.ExternalCalls.WithLabelValues(api, outcome).Inc()
		}
		if logger != nil {
			logger.ExternalAPILogger(api, duration, err)
		}
	}
}
