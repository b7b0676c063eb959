package fleet

import (
	"path/filepath"
	"testing"
)

func TestAllocate(t *testing.T) {
	a := DefaultAllocator("/opt/tor/TorData")

	spec := a.Allocate(0)
	if spec.SOCKSPort != 9050 || spec.ControlPort != 9151 {
		t.Errorf("index 0 = %+v, want ports 9050/9151", spec)
	}
	if want := filepath.Join("/opt/tor/TorData", "Data_9050"); spec.DataDirectory != want {
		t.Errorf("data dir = %s, want %s", spec.DataDirectory, want)
	}

	spec = a.Allocate(7)
	if spec.Index != 7 || spec.SOCKSPort != 9057 || spec.ControlPort != 9158 {
		t.Errorf("index 7 = %+v", spec)
	}
}

func TestAllocatePairwiseDistinct(t *testing.T) {
	a := DefaultAllocator("/data")
	count := a.MaxInstances()

	ports := make(map[int]int)
	dirs := make(map[string]bool)
	for i, spec := range a.Plan(count) {
		if spec.SOCKSPort != 9050+i {
			t.Fatalf("socks port for %d = %d", i, spec.SOCKSPort)
		}
		for _, p := range []int{spec.SOCKSPort, spec.ControlPort} {
			if prev, ok := ports[p]; ok {
				t.Fatalf("port %d used by index %d and %d", p, prev, i)
			}
			ports[p] = i
		}
		if dirs[spec.DataDirectory] {
			t.Fatalf("duplicate data dir %s", spec.DataDirectory)
		}
		dirs[spec.DataDirectory] = true
	}
}

func TestMaxInstances(t *testing.T) {
	tests := []struct {
		name  string
		alloc Allocator
		want  int
	}{
		{"defaults", DefaultAllocator(""), 101},
		{"control below socks", Allocator{SOCKSBase: 9200, ControlBase: 9100}, 100},
		{"same base", Allocator{SOCKSBase: 9050, ControlBase: 9050}, 0},
		{"near port limit", Allocator{SOCKSBase: 20000, ControlBase: 65530}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alloc.MaxInstances(); got != tt.want {
				t.Errorf("MaxInstances() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	spec := DefaultAllocator("").Allocate(2)
	if got := spec.Endpoint("socks5"); got != "socks5://127.0.0.1:9052" {
		t.Errorf("Endpoint() = %s", got)
	}
}

func TestPlanEmpty(t *testing.T) {
	if got := DefaultAllocator("").Plan(0); len(got) != 0 {
		t.Errorf("Plan(0) = %v", got)
	}
}

func TestAllocatorFor(t *testing.T) {
	a := AllocatorFor("/opt/tor/tor", "", 0, 0)
	if a.SOCKSBase != DefaultSOCKSBase || a.ControlBase != DefaultControlBase {
		t.Errorf("bases = %d/%d", a.SOCKSBase, a.ControlBase)
	}
	if a.BaseDataDir != filepath.Join("/opt/tor", DefaultDataDirName) {
		t.Errorf("BaseDataDir = %q", a.BaseDataDir)
	}

	b := AllocatorFor("/srv/bin/tor", "Fleet", 10000, 20000)
	if got := b.Allocate(2); got.SOCKSPort != 10002 || got.ControlPort != 20002 ||
		got.DataDirectory != filepath.Join("/srv/bin/Fleet", "Data_10002") {
		t.Errorf("spec = %+v", got)
	}
}
