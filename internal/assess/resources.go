package assess

import (
	"context"

	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"
)

// Resources reports host resource usage as percentages.
type Resources interface {
	DiskUsedPercent(ctx context.Context, path string) (float64, error)
	MemoryUsedPercent(ctx context.Context) (float64, error)
}

type hostResources struct{}

func (hostResources) DiskUsedPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

func (hostResources) MemoryUsedPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
