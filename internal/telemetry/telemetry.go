// Package telemetry answers "how is my laptop doing" with a one-line
// snapshot read from procfs and sysfs.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
	"go.uber.org/zap"
)

// Config holds probe settings. The mount points are overridable for
// tests.
type Config struct {
	ProcMount      string        `mapstructure:"proc_mount" yaml:"proc_mount"`
	SysMount       string        `mapstructure:"sys_mount" yaml:"sys_mount"`
	SampleInterval time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
}

// Probe samples CPU, memory, load and battery state.
type Probe struct {
	cfg    Config
	logger *zap.Logger
}

// NewProbe builds a probe. CPU usage needs two counter samples; the
// interval between them defaults to half a second.
func NewProbe(cfg Config, logger *zap.Logger) *Probe {
	if cfg.ProcMount == "" {
		cfg.ProcMount = procfs.DefaultMountPoint
	}
	if cfg.SysMount == "" {
		cfg.SysMount = "/sys"
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = 500 * time.Millisecond
	}
	return &Probe{cfg: cfg, logger: logger}
}

// Snapshot renders the current hardware state as a single status line.
// A machine without a battery reports "Battery: N/A".
func (p *Probe) Snapshot(ctx context.Context) (string, error) {
	fs, err := procfs.NewFS(p.cfg.ProcMount)
	if err != nil {
		return "", fmt.Errorf("open procfs: %w", err)
	}

	parts := []string{}

	if cpu, err := p.cpuPercent(ctx, fs); err == nil {
		parts = append(parts, fmt.Sprintf("CPU: %.1f%%", cpu))
	} else {
		p.logger.Warn("CPU sample failed", zap.Error(err))
	}
	if load, err := fs.LoadAvg(); err == nil {
		parts = append(parts, fmt.Sprintf("Load: %.2f", load.Load1))
	}
	if mem, err := p.memPercent(fs); err == nil {
		parts = append(parts, fmt.Sprintf("Mem: %.1f%% used", mem))
	} else {
		p.logger.Warn("Memory sample failed", zap.Error(err))
	}
	parts = append(parts, p.batteryStatus())

	if len(parts) == 1 {
		return "", fmt.Errorf("no hardware stats available")
	}
	return strings.Join(parts, " | "), nil
}

// cpuPercent derives busy time from two /proc/stat samples.
func (p *Probe) cpuPercent(ctx context.Context, fs procfs.FS) (float64, error) {
	first, err := fs.Stat()
	if err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(p.cfg.SampleInterval):
	}
	second, err := fs.Stat()
	if err != nil {
		return 0, err
	}

	busyDelta := busy(second.CPUTotal) - busy(first.CPUTotal)
	totalDelta := total(second.CPUTotal) - total(first.CPUTotal)
	if totalDelta <= 0 {
		return 0, nil
	}
	return 100 * busyDelta / totalDelta, nil
}

func busy(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
}

func total(c procfs.CPUStat) float64 {
	return busy(c) + c.Idle + c.Iowait
}

func (p *Probe) memPercent(fs procfs.FS) (float64, error) {
	mem, err := fs.Meminfo()
	if err != nil {
		return 0, err
	}
	if mem.MemTotal == nil || mem.MemAvailable == nil || *mem.MemTotal == 0 {
		return 0, fmt.Errorf("meminfo incomplete")
	}
	used := float64(*mem.MemTotal-*mem.MemAvailable) / float64(*mem.MemTotal)
	return 100 * used, nil
}

// batteryStatus reads the first battery-class power supply. Desktops
// have none.
func (p *Probe) batteryStatus() string {
	fs, err := sysfs.NewFS(p.cfg.SysMount)
	if err != nil {
		return "Battery: N/A"
	}
	supplies, err := fs.PowerSupplyClass()
	if err != nil {
		return "Battery: N/A"
	}
	for _, ps := range supplies {
		if ps.Type != "Battery" || ps.Capacity == nil {
			continue
		}
		plugged := "Plugged in"
		if ps.Status == "Discharging" {
			plugged = "On Battery"
		}
		return fmt.Sprintf("Battery: %d%% (%s)", *ps.Capacity, plugged)
	}
	return "Battery: N/A"
}
