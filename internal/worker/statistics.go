package worker

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/me/controlnode/pkg/model"
)

// collectStatistics reports host memory usage alongside taskFinished.
// Fields that cannot be read are left empty.
func collectStatistics(ctx context.Context) *model.WorkerStatistics {
	stats := &model.WorkerStatistics{Version: model.Version}
	if host, err := os.Hostname(); err == nil {
		stats.HostName = host
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryTotal = vm.Total
		stats.MemoryUsed = vm.Used
	}
	return stats
}
