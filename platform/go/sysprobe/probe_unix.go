//go:build !windows

package sysprobe

import (
	"context"

	"github.com/shirou/gopsutil/v4/load"
)

type unixProbe struct {
	diskPath string
}

// New returns the probe for this OS. Unix probes add the load average.
func New() Probe {
	return &unixProbe{diskPath: "/"}
}

func (p *unixProbe) Collect(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s := collectCommon(ctx, p.diskPath)
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load = &LoadAvg{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	} else {
		s.Warnings = append(s.Warnings, "load: "+err.Error())
	}
	return s, nil
}
