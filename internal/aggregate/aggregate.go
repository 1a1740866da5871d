// Package aggregate rebuckets a sample window into fixed-width time
// buckets for display.
package aggregate

import (
	"math"
	"time"

	"hostpulse/internal/models"
)

const LabelLayout = "15:04"

// Buckets returns exactly count buckets, oldest first, covering
// [now-count*width, now). Bucket i spans the half-open interval
// [end-width, end) and is labelled with end in loc. Empty buckets are
// zero-filled. Ping is averaged over samples that carry a reading.
func Buckets(window []models.Sample, now time.Time, count int, width time.Duration, loc *time.Location) []models.Bucket {
	if count <= 0 {
		return []models.Bucket{}
	}
	if width <= 0 {
		width = time.Hour
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]models.Bucket, 0, count)
	for i := count - 1; i >= 0; i-- {
		end := now.Add(-time.Duration(i) * width)
		start := end.Add(-width)

		var cpu, ram, ping float64
		var n, pings int
		for _, s := range window {
			if s.Time.Before(start) || !s.Time.Before(end) {
				continue
			}
			cpu += s.CPU
			ram += s.RAM
			n++
			if s.Ping != nil {
				ping += *s.Ping
				pings++
			}
		}

		b := models.Bucket{Label: end.In(loc).Format(LabelLayout)}
		if n > 0 {
			b.AvgCPU = round(cpu / float64(n))
			b.AvgRAM = round(ram / float64(n))
		}
		if pings > 0 {
			b.AvgPing = round(ping / float64(pings))
		}
		out = append(out, b)
	}
	return out
}

func round(v float64) int { return int(math.Round(v)) }
