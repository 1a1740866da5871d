package collector

import (
	"context"
	"log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

var rttPattern = regexp.MustCompile(`time[=<]\s*([0-9]+(?:\.[0-9]+)?)\s*ms`)

// Probe runs one external ICMP echo per call.
type Probe struct {
	Bin     string
	Args    []string
	Timeout time.Duration
	log     *slog.Logger
}

func NewProbe(host string, timeout time.Duration, logger *slog.Logger) *Probe {
	wait := int(math.Ceil(timeout.Seconds()))
	if wait < 1 {
		wait = 1
	}
	return &Probe{
		Bin:     "ping",
		Args:    []string{"-c", "1", "-W", strconv.Itoa(wait), host},
		Timeout: timeout,
		log:     logger,
	}
}

func (p *Probe) Ping(ctx context.Context) *float64 {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, p.Bin, p.Args...)
	// Output waits for the process; WaitDelay bounds the pipe drain after a kill.
	cmd.WaitDelay = 500 * time.Millisecond
	out, err := cmd.Output()
	if err != nil {
		if p.log != nil {
			p.log.Debug("latency probe failed", "bin", p.Bin, "err", err, "timed_out", ctx.Err() != nil)
		}
		return nil
	}
	ms, ok := ParseRTT(string(out))
	if !ok {
		if p.log != nil {
			p.log.Debug("latency probe output not recognized", "bin", p.Bin)
		}
		return nil
	}
	return &ms
}

// ParseRTT extracts the round-trip time in milliseconds from ping output.
func ParseRTT(out string) (float64, bool) {
	m := rttPattern.FindStringSubmatch(out)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
