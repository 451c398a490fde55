// Package cooprunner provides a cooperative task scheduler for Go.
//
// Tasks are small state machines registered on a Processor. Each call to
// Run does a slice of work and returns a TaskState saying whether to run
// again immediately, after a delay, or never. Events posted meanwhile wait
// for the next wake of a task that accepts them. The processor always runs
// the due task with the earliest wake time, so tasks never need locks for
// state they own.
//
// # Quick Start
//
// Create a processor, add a task, and run it:
//
//	p := cooprunner.NewThreadedProcessor("main")
//	p.AddFunc(func(e cooprunner.Event) cooprunner.TaskState {
//		fmt.Println("tick")
//		return cooprunner.Sleep(100 * time.Millisecond)
//	}, cooprunner.Continue())
//	p.Start()
//	defer p.Done()
//
// # Key Concepts
//
// Processor: Picks the earliest task, pairs it with an event or a Timeout,
// runs it, and reschedules it. Tasks run one at a time.
//
// Platform: Threaded platforms run the loop on its own goroutine and block
// on real primitives. Cooperative platforms run everything on the caller
// and turn waits into polling with an idle hook, for single-context targets.
//
// Semaphore and Channel: A Semaphore counts typed posts; a Channel pairs a
// FIFO queue with a semaphore so readers can wait for messages, timeouts or
// foreign posts in one call.
//
// ProcessorGroup: Several threaded processors driven together, with the
// first task panic stopping them all.
//
// # Thread Safety
//
// On a threaded platform AddTask, Notify, Stop and event pushes are safe from
// any goroutine. A task's Run is only ever called from its processor's loop.
//
// For more details, see https://github.com/Swind/go-coop-runner
package cooprunner
