//go:build windows

package sysprobe

import (
	"context"
	"os"
)

type windowsProbe struct {
	diskPath string
}

// New returns the probe for this OS. Windows has no load average.
func New() Probe {
	drive := os.Getenv("SystemDrive")
	if drive == "" {
		drive = "C:"
	}
	return &windowsProbe{diskPath: drive + `\`}
}

func (p *windowsProbe) Collect(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	return collectCommon(ctx, p.diskPath), nil
}
