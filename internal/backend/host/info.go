package host

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Info describes the host device.
type Info struct {
	Arch     string   `json:"arch"`
	Workers  int      `json:"workers"`
	Features []string `json:"features"`
}

// Describe reports the CPU features relevant to the host kernels.
func Describe(workers int) Info {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	info := Info{Arch: runtime.GOARCH, Workers: workers, Features: []string{}}
	add := func(ok bool, name string) {
		if ok {
			info.Features = append(info.Features, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasAVX512BF16, "avx512bf16")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasASIMDHP, "asimdhp")
	}
	return info
}
