package api

import (
	"context"
	"sync"

	"github.com/smazurov/torfleet/internal/fleet"
	"github.com/smazurov/torfleet/internal/logging"
)

// fakeFleet records calls and returns canned results.
type fakeFleet struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	result    fleet.BatchResult
	stop      fleet.StopResult
	state     fleet.State
	instances []fleet.InstanceInfo
	sink      *logging.Sink

	startPath  string
	startCount string
	stops      int
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{state: fleet.StateIdle, sink: logging.NewSink(0)}
}

func (f *fakeFleet) StartInstances(path, countText string) (<-chan fleet.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startPath, f.startCount = path, countText
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.state = fleet.StateStarting
	ch := make(chan fleet.BatchResult, 1)
	ch <- f.result
	close(ch)
	return ch, nil
}

func (f *fakeFleet) StopAllInstances(_ context.Context) (fleet.StopResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stop, f.stopErr
}

func (f *fakeFleet) State() fleet.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeFleet) Running() bool {
	for _, info := range f.instances {
		if info.Alive {
			return true
		}
	}
	return false
}

func (f *fakeFleet) Endpoints() []string {
	var out []string
	for _, info := range f.instances {
		if info.Alive {
			out = append(out, info.Endpoint)
		}
	}
	return out
}

func (f *fakeFleet) Instances() []fleet.InstanceInfo { return f.instances }

func (f *fakeFleet) Allocator(path string) fleet.Allocator {
	return fleet.DefaultAllocator("/opt/tor/TorData")
}

func (f *fakeFleet) Scheme() string { return fleet.DefaultScheme }

func (f *fakeFleet) Sink() *logging.Sink { return f.sink }

func (f *fakeFleet) lastStart() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startPath, f.startCount
}
