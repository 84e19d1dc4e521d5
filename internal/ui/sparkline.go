package ui

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders throughput samples as Unicode block characters. The
// output is exactly width runes wide; when fewer samples exist the left
// side is padded flat. Values are normalized against the largest sample.
func Sparkline(data []float64, width int) string {
	if width <= 0 {
		return ""
	}

	samples := make([]float64, width)
	if len(data) >= width {
		copy(samples, data[len(data)-width:])
	} else {
		copy(samples[width-len(data):], data)
	}

	var maxVal float64
	for _, v := range samples {
		if v > maxVal {
			maxVal = v
		}
	}

	out := make([]rune, width)
	for i, v := range samples {
		if maxVal <= 0 || v <= 0 {
			out[i] = sparkBlocks[0]
			continue
		}
		idx := int(v / maxVal * float64(len(sparkBlocks)-1))
		if idx >= len(sparkBlocks) {
			idx = len(sparkBlocks) - 1
		}
		out[i] = sparkBlocks[idx]
	}
	return string(out)
}
