package system

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// PrintRunStats reports wall time and process resource usage after a
// pipeline run. Failures here are cosmetic and only logged.
func PrintRunStats(start time.Time) {
	total := time.Since(start)

	fmt.Println("--- [PERFORMANCE REPORT] ---")
	fmt.Printf("Total Time: %.2fs\n", total.Seconds())

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			fmt.Printf("Memory (RSS): %.1f MB\n", float64(mem.RSS)/1024/1024)
		}
		if cpu, err := proc.Times(); err == nil {
			fmt.Printf("CPU Time: %.2fs user / %.2fs system\n", cpu.User, cpu.System)
		}
	}
	fmt.Println("----------------------------")
}
