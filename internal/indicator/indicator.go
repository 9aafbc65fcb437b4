// Package indicator provides technical indicator calculations over
// closing-price series.
//
// All functions are pure: given the same series and parameters they return
// the same output, with no side effects. Indices for which an indicator is
// not yet defined (the warm-up prefix) hold NaN; use Valid to test.
package indicator

import "math"

// Valid reports whether an indicator value is defined at an index.
func Valid(v float64) bool {
	return !math.IsNaN(v)
}

// undefined fills the first n entries of out with NaN and returns out.
func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the simple moving average. out[i] is NaN for i < period-1,
// otherwise the mean of the trailing period closes.
func SMA(closes []float64, period int) []float64 {
	out := undefined(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average. The value at period-1 is
// seeded with the SMA of the first period closes; thereafter
// ema[i] = (close[i] - ema[i-1])*k + ema[i-1] with k = 2/(period+1).
func EMA(closes []float64, period int) []float64 {
	out := undefined(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += closes[i]
	}
	out[period-1] = seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		out[i] = (closes[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI computes the Relative Strength Index over consecutive close deltas.
// out[i] is NaN for i < period; otherwise derived from the average gain
// and loss over the trailing period steps. A zero average loss saturates
// RSI at 100 rather than dividing by zero, so output is always in [0,100].
func RSI(closes []float64, period int) []float64 {
	out := undefined(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	for i := period; i < len(closes); i++ {
		avgGain, avgLoss := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			avgGain += gains[j]
			avgLoss += losses[j]
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)

		if avgLoss == 0 {
			out[i] = 100.0
		} else {
			rs := avgGain / avgLoss
			out[i] = 100.0 - 100.0/(1.0+rs)
		}
	}
	return out
}

// Bands holds the three Bollinger band series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands computes middle = SMA(period) and upper/lower bands at
// multiplier population standard deviations around it. All three series
// are NaN until period-1.
func BollingerBands(closes []float64, period int, multiplier float64) Bands {
	middle := SMA(closes, period)
	upper := undefined(len(closes))
	lower := undefined(len(closes))
	if period <= 0 || len(closes) < period {
		return Bands{Upper: upper, Middle: middle, Lower: lower}
	}

	for i := period - 1; i < len(closes); i++ {
		mean := middle[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(period))
		upper[i] = mean + multiplier*std
		lower[i] = mean - multiplier*std
	}
	return Bands{Upper: upper, Middle: middle, Lower: lower}
}
