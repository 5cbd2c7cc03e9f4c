package anomaly

import "math"

// Fit returns the population mean and standard deviation of values.
// It is used to summarise regular days into a baseline.
func Fit(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean = meanOf(values)

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	stddev = math.Sqrt(variance / float64(len(values)))
	return mean, stddev
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
