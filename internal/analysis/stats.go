package analysis

import "math"

type regression struct {
	slope float64
	r     float64
	n     int
}

// linearFit computes an ordinary least-squares line through (xs, ys) and its
// Pearson correlation. A flat series has zero slope and zero correlation.
func linearFit(xs, ys []float64) regression {
	n := len(xs)
	fit := regression{n: n}
	if n < 2 {
		return fit
	}

	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	if sxx == 0 {
		return fit
	}
	fit.slope = sxy / sxx
	if syy > 0 {
		fit.r = sxy / math.Sqrt(sxx*syy)
	}
	return fit
}

// significant applies a two-tailed t-test on r at the 5% level.
func (f regression) significant() bool {
	df := f.n - 2
	if df < 1 || f.r == 0 {
		return false
	}

	r2 := f.r * f.r
	if r2 >= 1 {
		return true
	}
	t := math.Abs(f.r) * math.Sqrt(float64(df)/(1-r2))
	return t > tCritical(df)
}

// tCritical95 holds two-tailed 5% critical values of Student's t for
// 1..30 degrees of freedom.
var tCritical95 = [...]float64{
	12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
	2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
	2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042,
}

func tCritical(df int) float64 {
	if df >= 1 && df <= len(tCritical95) {
		return tCritical95[df-1]
	}
	return 1.960
}
