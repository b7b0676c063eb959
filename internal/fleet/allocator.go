package fleet

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Default port bases.
const (
	DefaultSOCKSBase   = 9050
	DefaultControlBase = 9151
)

const (
	dataDirPrefix = "Data_"
	maxPort       = 65535
)

// InstanceSpec is the resource assignment for one instance.
type InstanceSpec struct {
	Index         int
	SOCKSPort     int
	ControlPort   int
	DataDirectory string
}

// Endpoint renders the proxy address for the instance, e.g. socks5://127.0.0.1:9050.
func (s InstanceSpec) Endpoint(scheme string) string {
	return fmt.Sprintf("%s://127.0.0.1:%d", scheme, s.SOCKSPort)
}

// Allocator maps an instance index to its ports and data directory.
type Allocator struct {
	SOCKSBase   int
	ControlBase int
	BaseDataDir string
}

// DefaultAllocator returns an allocator using the standard port bases.
func DefaultAllocator(baseDataDir string) Allocator {
	return Allocator{
		SOCKSBase:   DefaultSOCKSBase,
		ControlBase: DefaultControlBase,
		BaseDataDir: baseDataDir,
	}
}

// AllocatorFor returns the allocator for an executable at executablePath.
// Data directories live in dataDirName next to the executable. Zero values
// take the defaults.
func AllocatorFor(executablePath, dataDirName string, socksBase, controlBase int) Allocator {
	if dataDirName == "" {
		dataDirName = DefaultDataDirName
	}
	if socksBase == 0 {
		socksBase = DefaultSOCKSBase
	}
	if controlBase == 0 {
		controlBase = DefaultControlBase
	}
	return Allocator{
		SOCKSBase:   socksBase,
		ControlBase: controlBase,
		BaseDataDir: filepath.Join(filepath.Dir(executablePath), dataDirName),
	}
}

// Allocate returns the spec for index. It never fails.
func (a Allocator) Allocate(index int) InstanceSpec {
	socks := a.SOCKSBase + index
	return InstanceSpec{
		Index:         index,
		SOCKSPort:     socks,
		ControlPort:   a.ControlBase + index,
		DataDirectory: filepath.Join(a.BaseDataDir, dataDirPrefix+strconv.Itoa(socks)),
	}
}

// Plan allocates indexes 0..count-1.
func (a Allocator) Plan(count int) []InstanceSpec {
	specs := make([]InstanceSpec, 0, max(count, 0))
	for i := range count {
		specs = append(specs, a.Allocate(i))
	}
	return specs
}

// MaxInstances is the largest count for which no SOCKS port equals any
// control port and every port stays within the valid range.
func (a Allocator) MaxInstances() int {
	gap := a.ControlBase - a.SOCKSBase
	if gap < 0 {
		gap = -gap
	}
	room := maxPort - max(a.SOCKSBase, a.ControlBase) + 1
	if room < 0 {
		room = 0
	}
	return min(gap, room)
}
