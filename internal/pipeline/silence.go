package pipeline

// silenceDetector ends an utterance after hang consecutive chunks below the
// RMS threshold, counted only once speech has been observed. A capture that
// never crosses the threshold keeps listening.
type silenceDetector struct {
	threshold float64
	hang      int

	speech bool
	quiet  int
}

// observe feeds one chunk's RMS level and reports whether the utterance is
// complete.
func (d *silenceDetector) observe(rms float64) bool {
	if rms >= d.threshold {
		d.speech = true
		d.quiet = 0
		return false
	}
	if !d.speech {
		return false
	}
	d.quiet++
	return d.quiet >= d.hang
}
