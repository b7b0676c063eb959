// Package fleet launches and supervises a batch of tor daemons.
//
// Each instance gets a deterministic SOCKS port, control port and data
// directory from an Allocator. A Supervisor runs start and stop requests one
// at a time on a single worker goroutine:
//
//	sup := fleet.NewSupervisor(&fleet.Options{DaemonName: "tor", Sink: sink})
//	results, err := sup.StartInstances("/opt/tor/tor", "3")
//	if err != nil {
//	    return err // *ValidationError or ErrBusy
//	}
//	res := <-results
//	fmt.Println(res.Endpoints) // socks5://127.0.0.1:9050 ...
//	defer sup.Close(ctx)
//
// Starting always sweeps daemons left over from earlier runs by process
// name before spawning, since handles from a previous run are not known to
// this process. Stopping does the same sweep and then forgets all handles.
package fleet
