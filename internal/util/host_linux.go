//go:build linux

package util

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const cpuTopologyGlob = "/sys/devices/system/cpu/cpu[0-9]*/topology"

func totalMemoryBytes() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}

// physicalCores counts distinct (package, core) pairs in sysfs.
func physicalCores() int {
	dirs, err := filepath.Glob(cpuTopologyGlob)
	if err != nil {
		return 0
	}
	cores := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		core, err := os.ReadFile(filepath.Join(dir, "core_id"))
		if err != nil {
			continue
		}
		pkg, _ := os.ReadFile(filepath.Join(dir, "physical_package_id"))
		cores[strings.TrimSpace(string(pkg))+":"+strings.TrimSpace(string(core))] = struct{}{}
	}
	return len(cores)
}
