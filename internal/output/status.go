package output

import (
	"context"
	"fmt"
	"time"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

// PrettyStageStatus renders the progress of a stage expected to last
// expected, or only its elapsed time when that is unknown.
func PrettyStageStatus(stage string, elapsed, expected time.Duration) string {
	if expected <= 0 {
		return fmt.Sprintf("\r%-20s %10s", stage, elapsed.Truncate(time.Millisecond))
	}
	percent := int(elapsed * 100 / expected)
	return fmt.Sprintf("\r%-20s [%s] %3d%% %10s",
		stage, ProgressBar(percent, 40), min(percent, 100), elapsed.Truncate(time.Millisecond),
	)
}
