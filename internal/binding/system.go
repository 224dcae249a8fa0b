package binding

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const maxDefaultThreads = 8

// MemoryProbe reports bytes of system memory currently available for allocation.
type MemoryProbe func() (uint64, error)

// SystemMemory reads available memory from the operating system.
func SystemMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// DefaultThreads returns the physical core count capped for decoder use.
func DefaultThreads() int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if n > maxDefaultThreads {
		n = maxDefaultThreads
	}
	if n < 1 {
		n = 1
	}
	return n
}
