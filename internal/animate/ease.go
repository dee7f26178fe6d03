package animate

// clamp01 clamps x in [0,1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// smootherstep (cubic-ish) for ease="cubic"
func smootherstep(x float64) float64 {
	// 6x^5 - 15x^4 + 10x^3
	return x * x * x * (x*(x*6-15) + 10)
}

// Ease maps x in [0,1] through the named curve. Unknown names are linear.
func Ease(kind string, x float64) float64 {
	x = clamp01(x)
	switch kind {
	case "linear", "":
		return x
	case "smooth":
		// classic smoothstep 3x^2 - 2x^3
		return x * x * (3 - 2*x)
	case "cubic":
		return smootherstep(x)
	default:
		return x
	}
}

// level converts a 0..1 intensity to a channel level, rounding to nearest.
func level(v float64) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
