package metrics

import (
	"context"
	"time"

	"algoarena/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

type hostMetrics struct {
	cpuUsage   prometheus.Gauge
	memoryUsed prometheus.Gauge
	diskUsed   prometheus.Gauge
}

func newHostMetrics(factory promauto.Factory) *hostMetrics {
	return &hostMetrics{
		cpuUsage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "cpu_usage_percent",
			Help:      "Total CPU usage percentage across all cores",
		}),
		memoryUsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "memory_used_bytes",
			Help:      "Total used memory in bytes",
		}),
		diskUsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "disk_used_bytes",
			Help:      "Disk usage in bytes of the judge work root",
		}),
	}
}

// CollectHost samples host usage every interval until ctx ends.
// diskPath is usually the judge work root.
func (r *Registry) CollectHost(ctx context.Context, interval time.Duration, diskPath string) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.host.sample(ctx, diskPath)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *hostMetrics) sample(ctx context.Context, diskPath string) {
	if percent, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percent) > 0 {
		h.cpuUsage.Set(percent[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.memoryUsed.Set(float64(vm.Used))
	}
	if diskPath == "" {
		diskPath = "/"
	}
	usage, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		logger.Debug(ctx, "disk usage sample failed", zap.String("path", diskPath), zap.Error(err))
		return
	}
	h.diskUsed.Set(float64(usage.Used))
}
