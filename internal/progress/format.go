package progress

import (
	"fmt"
	"strings"
	"time"
)

// Bar draws a fixed-width bar for a fraction in [0,1].
func Bar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func FormatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	switch {
	case bps >= g:
		return fmt.Sprintf("%.2f GB/s", bps/g)
	case bps >= m:
		return fmt.Sprintf("%.1f MB/s", bps/m)
	case bps >= k:
		return fmt.Sprintf("%.0f KB/s", bps/k)
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

func FormatBytes(n int64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	switch {
	case n >= g:
		return fmt.Sprintf("%.2f GiB", float64(n)/g)
	case n >= m:
		return fmt.Sprintf("%.1f MiB", float64(n)/m)
	case n >= k:
		return fmt.Sprintf("%.0f KiB", float64(n)/k)
	case n <= 0:
		return "0 B"
	}
	return fmt.Sprintf("%d B", n)
}

func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--:--:--"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
