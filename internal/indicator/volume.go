package indicator

// VolumeSurge reports whether current >= mean(prior)*multiplier. prior must
// be the lookback closed bars immediately before the evaluated bar; with
// fewer than lookback bars there is no surge.
func VolumeSurge(prior []float64, current, multiplier float64, lookback int) bool {
	if lookback <= 0 || len(prior) < lookback {
		return false
	}
	window := prior[len(prior)-lookback:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return current >= sum/float64(lookback)*multiplier
}
