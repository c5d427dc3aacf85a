// Package sysinfo inspects the host the job runs on so resource hints can be
// checked against what the machine actually has.
package sysinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// HostInfo is a point-in-time snapshot of host resources. Zero fields were not collected.
type HostInfo struct {
	LogicalCPUs       int    `json:"logical_cpus"`
	TotalMemoryMB     uint64 `json:"total_memory_mb"`
	AvailableMemoryMB uint64 `json:"available_memory_mb"`
	DiskPath          string `json:"disk_path,omitempty"`
	FreeDiskMB        uint64 `json:"free_disk_mb"`
}

// Collect gathers a snapshot. diskPath, when set, is the path whose
// filesystem free space is reported. Collection errors are combined; the
// fields that could be read are still returned.
func Collect(diskPath string) (HostInfo, error) {
	var info HostInfo
	var errs error

	if n, err := cpu.Counts(true); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cpu count: %w", err))
	} else {
		info.LogicalCPUs = n
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("virtual memory: %w", err))
	} else {
		info.TotalMemoryMB = vm.Total / (1024 * 1024)
		info.AvailableMemoryMB = vm.Available / (1024 * 1024)
	}

	if diskPath != "" {
		info.DiskPath = diskPath
		if usage, err := disk.Usage(diskPath); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("disk usage for %s: %w", diskPath, err))
		} else {
			info.FreeDiskMB = usage.Free / (1024 * 1024)
		}
	}

	return info, errs
}

// Warnings compares requested resources with the snapshot. modelBytes is the
// size of the model artifact, or 0 when unknown.
func (h HostInfo) Warnings(threadCount int, modelBytes int64) []string {
	var warnings []string
	if h.LogicalCPUs > 0 && threadCount > h.LogicalCPUs {
		warnings = append(warnings, fmt.Sprintf("n_threads=%d exceeds the %d logical CPUs on this host", threadCount, h.LogicalCPUs))
	}
	if h.AvailableMemoryMB > 0 && modelBytes > 0 && uint64(modelBytes)/(1024*1024) > h.AvailableMemoryMB {
		warnings = append(warnings, fmt.Sprintf("model artifact (%d MB) is larger than available memory (%d MB)", modelBytes/(1024*1024), h.AvailableMemoryMB))
	}
	return warnings
}

// Fields returns the snapshot as zap fields.
func (h HostInfo) Fields() []zap.Field {
	fields := []zap.Field{
		zap.Int("logical_cpus", h.LogicalCPUs),
		zap.Uint64("total_memory_mb", h.TotalMemoryMB),
		zap.Uint64("available_memory_mb", h.AvailableMemoryMB),
	}
	if h.DiskPath != "" {
		fields = append(fields, zap.String("disk_path", h.DiskPath), zap.Uint64("free_disk_mb", h.FreeDiskMB))
	}
	return fields
}
