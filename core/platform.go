package core

import (
	"runtime"

	"github.com/benbjohnson/clock"
)

// Platform is the capability set the primitives are built on. Two
// implementations exist: threaded, where waits block the calling goroutine,
// and cooperative, where there is a single execution context and waits
// degrade to polling with an idle hook in between.
type Platform interface {
	NewMutex() Mutex
	Clock() clock.Clock

	// Threaded reports whether waits may block on other goroutines.
	Threaded() bool

	// Idle yields control while a cooperative wait polls. Threaded
	// platforms never call it.
	Idle()
}

type threadedPlatform struct {
	clk clock.Clock
}

// NewThreadedPlatform returns the goroutine-backed platform. A nil clock
// means the wall clock.
func NewThreadedPlatform(clk clock.Clock) Platform {
	if clk == nil {
		clk = clock.New()
	}
	return &threadedPlatform{clk: clk}
}

func (p *threadedPlatform) NewMutex() Mutex    { return &threadMutex{} }
func (p *threadedPlatform) Clock() clock.Clock { return p.clk }
func (p *threadedPlatform) Threaded() bool     { return true }
func (p *threadedPlatform) Idle()              {}

type cooperativePlatform struct {
	clk  clock.Clock
	idle func()
}

// NewCooperativePlatform returns the single-context platform. idle is called
// between polls of a blocking wait; it should hand control to whatever
// produces posts (an interrupt wait on real hardware). nil means
// runtime.Gosched.
func NewCooperativePlatform(clk clock.Clock, idle func()) Platform {
	if clk == nil {
		clk = clock.New()
	}
	if idle == nil {
		idle = runtime.Gosched
	}
	return &cooperativePlatform{clk: clk, idle: idle}
}

func (p *cooperativePlatform) NewMutex() Mutex    { return &coopMutex{} }
func (p *cooperativePlatform) Clock() clock.Clock { return p.clk }
func (p *cooperativePlatform) Threaded() bool     { return false }
func (p *cooperativePlatform) Idle()              { p.idle() }

var defaultPlatform = NewThreadedPlatform(nil)

// DefaultPlatform returns the shared threaded platform on the wall clock.
func DefaultPlatform() Platform {
	return defaultPlatform
}
