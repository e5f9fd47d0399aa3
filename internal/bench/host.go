package bench

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the machine the harness ran on. Latency numbers are
// only comparable between runs on similar hosts.
type HostInfo struct {
	Hostname      string  `yaml:"hostname"`
	OS            string  `yaml:"os"`
	Platform      string  `yaml:"platform,omitempty"`
	CPUModel      string  `yaml:"cpuModel,omitempty"`
	CPUCores      int     `yaml:"cpuCores"`
	MemoryTotalGB float64 `yaml:"memoryTotalGB,omitempty"`
	MemoryPercent float64 `yaml:"memoryPercent,omitempty"`
	GoVersion     string  `yaml:"goVersion"`
}

// CollectHost gathers host context. Fields that cannot be read are left empty.
func CollectHost() HostInfo {
	info := HostInfo{
		OS:        runtime.GOOS + "/" + runtime.GOARCH,
		CPUCores:  runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}

	if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}

	if h, err := host.Info(); err == nil {
		info.Platform = h.Platform + " " + h.PlatformVersion
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.CPUCores = n
	}

	if v, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalGB = float64(v.Total) / (1024 * 1024 * 1024)
		info.MemoryPercent = v.UsedPercent
	}

	return info
}
