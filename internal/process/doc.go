// Package process starts, observes and terminates operating system processes.
//
// Process wraps os/exec for a single long-running child:
//   - Start returns as soon as the OS accepted the spawn
//   - stdout and stderr are scanned line by line on background goroutines
//     and handed to an OutputHandler and a module logger
//   - a reaper goroutine waits on the child so Alive, Done and ExitCode
//     reflect the real process state
//
// FindByName and TerminateAll implement name-based cleanup of processes this
// program did not necessarily start:
//
//	matches, err := process.FindByName("tor")
//	if err != nil {
//	    return err
//	}
//	res := process.TerminateAll(matches, process.DefaultKillGrace, logger)
//	for _, err := range res.Errors {
//	    logger.Warn("terminate failed", "error", err)
//	}
//
// On Linux discovery reads /proc through prometheus/procfs; elsewhere it
// shells out to pgrep on other Unix systems. The package relies on process
// groups and signals and does not build on Windows.
package process
