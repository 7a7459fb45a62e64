package monitoring

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type ResourceUsage struct {
	CPUPercent    float64
	MemoryUsedMB  float64
	MemoryTotalMB float64
	MemoryPercent float64
	DiskFreeGB    float64
	DiskPercent   float64
	NumGoroutines int
}

// StartMonitoring logs process and save-root resource usage on an interval
// until ctx is cancelled. Unattended rigs fill disks; the periodic line in
// the session log is often the only warning.
func StartMonitoring(ctx context.Context, interval time.Duration, savePath string) {
	go func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			log.Printf("[Monitor] Error getting process: %v", err)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				usage, err := getResourceUsage(proc, savePath)
				if err != nil {
					log.Printf("[Monitor] Error getting resource usage: %v", err)
					continue
				}

				log.Printf("[Monitor] CPU: %.2f%%, Memory: %.2f/%.2f MB (%.2f%%), Disk free: %.2f GB (%.2f%% used), Goroutines: %d",
					usage.CPUPercent,
					usage.MemoryUsedMB,
					usage.MemoryTotalMB,
					usage.MemoryPercent,
					usage.DiskFreeGB,
					usage.DiskPercent,
					usage.NumGoroutines)
			}
		}
	}()
}

func getResourceUsage(proc *process.Process, savePath string) (ResourceUsage, error) {
	var usage ResourceUsage

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %v", err)
	}
	usage.CPUPercent = cpuPercent

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %v", err)
	}

	procMem, err := proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %v", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100

	diskUsage, err := disk.Usage(savePath)
	if err != nil {
		return usage, fmt.Errorf("error getting disk usage for %s: %v", savePath, err)
	}
	usage.DiskFreeGB = float64(diskUsage.Free) / 1024 / 1024 / 1024
	usage.DiskPercent = diskUsage.UsedPercent

	usage.NumGoroutines = runtime.NumGoroutine()

	return usage, nil
}

// DiskFreeBytes returns the free bytes on the filesystem holding path.
func DiskFreeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
