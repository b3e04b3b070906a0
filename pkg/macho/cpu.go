package macho

import "github.com/blacktop/go-macho/types"

// CPU types that predate the ones go-macho knows about.
const (
	CPUMc680x0 types.CPU = 6
	CPUHppa    types.CPU = 11
	CPUMc88000 types.CPU = 13
	CPUSparc   types.CPU = 14
	CPUI860    types.CPU = 15
)

var cpuStrings = map[types.CPU]string{
	types.CPUI386: "i386",
	types.CPUArm: "arm",
	types.CPUPpc: "ppc",
	CPUMc680x0:   "m68k",
	CPUHppa:      "hppa",
	CPUMc88000:   "m88k",
	CPUSparc:     "sparc",
	CPUI860:      "i860",
}

// CPUName returns the architecture name used on the command line for cpu.
func CPUName(cpu types.CPU) string {
	if s, ok := cpuStrings[cpu]; ok {
		return s
	}
	return cpu.String()
}

// ParseCPU is the inverse of CPUName.
func ParseCPU(name string) (types.CPU, bool) {
	for cpu, s := range cpuStrings {
		if s == name {
			return cpu, true
		}
	}
	return 0, false
}
