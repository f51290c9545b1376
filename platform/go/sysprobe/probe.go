// Package sysprobe reports host resources of the serving instance.
package sysprobe

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time view of host resources.
type Snapshot struct {
	Hostname      string    `json:"hostname"`
	OS            string    `json:"os"`
	Platform      string    `json:"platform"`
	UptimeSeconds uint64    `json:"uptimeSeconds"`
	CPUCount      int       `json:"cpuCount"`
	CPUPercent    float64   `json:"cpuPercent"`
	MemTotal      uint64    `json:"memTotal"`
	MemUsed       uint64    `json:"memUsed"`
	MemPercent    float64   `json:"memPercent"`
	DiskPath      string    `json:"diskPath"`
	DiskTotal     uint64    `json:"diskTotal"`
	DiskFree      uint64    `json:"diskFree"`
	DiskPercent   float64   `json:"diskPercent"`
	NetBytesSent  uint64    `json:"netBytesSent"`
	NetBytesRecv  uint64    `json:"netBytesRecv"`
	Load          *LoadAvg  `json:"load,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`
	CollectedAt   time.Time `json:"collectedAt"`
}

// LoadAvg is only reported where the OS has a load average.
type LoadAvg struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// Probe collects a Snapshot. Implementations are chosen per OS by New.
type Probe interface {
	Collect(ctx context.Context) (Snapshot, error)
}

// collectCommon fills the fields every OS supports. A failing collector becomes a warning
// so one missing counter does not hide the rest.
func collectCommon(ctx context.Context, diskPath string) Snapshot {
	s := Snapshot{DiskPath: diskPath, CollectedAt: time.Now().UTC()}

	if info, err := host.InfoWithContext(ctx); err == nil {
		s.Hostname, s.OS, s.Platform, s.UptimeSeconds = info.Hostname, info.OS, info.Platform, info.Uptime
	} else {
		s.Warnings = append(s.Warnings, "host: "+err.Error())
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUCount = n
	} else {
		s.Warnings = append(s.Warnings, "cpu count: "+err.Error())
	}
	// Zero interval compares against the previous call.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	} else if err != nil {
		s.Warnings = append(s.Warnings, "cpu percent: "+err.Error())
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemTotal, s.MemUsed, s.MemPercent = vm.Total, vm.Used, vm.UsedPercent
	} else {
		s.Warnings = append(s.Warnings, "memory: "+err.Error())
	}

	if du, err := disk.UsageWithContext(ctx, diskPath); err == nil {
		s.DiskTotal, s.DiskFree, s.DiskPercent = du.Total, du.Free, du.UsedPercent
	} else {
		s.Warnings = append(s.Warnings, "disk: "+err.Error())
	}

	if counters, err := psnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		s.NetBytesSent, s.NetBytesRecv = counters[0].BytesSent, counters[0].BytesRecv
	} else if err != nil {
		s.Warnings = append(s.Warnings, "net: "+err.Error())
	}

	return s
}

// Handler serves the probe's snapshot as JSON.
func Handler(p Probe, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := p.Collect(r.Context())
		if err != nil {
			logger.Error("collect system resources", zap.Error(err))
			http.Error(w, "resource probe failed", http.StatusInternalServerError)
			return
		}
		for _, warning := range snap.Warnings {
			logger.Debug("resource probe warning", zap.String("warning", warning))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(snap)
	}
}
