package vision

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"image-tagger/internal/logging"
	"image-tagger/internal/metrics"
)

const (
	// DefaultRestartCooldown is the minimum time between restarts.
	DefaultRestartCooldown = 2 * time.Minute

	restartTimeout = time.Minute
)

// Restarter runs an operator-supplied command (for example
// "docker restart ollama") to recover a wedged backend, at most once per
// cooldown.
type Restarter struct {
	command  string
	cooldown time.Duration
	run      func(ctx context.Context, command string) error
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewRestarter returns nil when command is empty.
func NewRestarter(command string, cooldown time.Duration) *Restarter {
	if command == "" {
		return nil
	}
	if cooldown <= 0 {
		cooldown = DefaultRestartCooldown
	}
	return &Restarter{
		command:  command,
		cooldown: cooldown,
		run:      runShell,
		now:      time.Now,
	}
}

// Restart runs the command unless one ran within the cooldown. It reports
// whether the command was run successfully.
func (r *Restarter) Restart(ctx context.Context, reason string) bool {
	r.mu.Lock()
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.cooldown {
		r.mu.Unlock()
		metrics.VisionRestartsTotal.WithLabelValues("skipped").Inc()
		logging.Debug("Vision backend restart skipped, last restart %v ago", now.Sub(r.last).Round(time.Second))
		return false
	}
	r.last = now
	r.mu.Unlock()

	logging.Warn("Restarting vision backend after error: %s", reason)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restartTimeout)
	defer cancel()

	if err := r.run(ctx, r.command); err != nil {
		metrics.VisionRestartsTotal.WithLabelValues("error").Inc()
		logging.Error("Vision backend restart failed: %v", err)
		return false
	}
	metrics.VisionRestartsTotal.WithLabelValues("success").Inc()
	logging.Info("Vision backend restart command completed")
	return true
}

func runShell(ctx context.Context, command string) error {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil && len(out) > 0 {
		logging.Warn("Restart command output: %s", truncate(string(out)))
	}
	return err
}
