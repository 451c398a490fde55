package main

import (
	"sync/atomic"
	"time"

	"github.com/Swind/go-coop-runner/core"
)

// frameSurface is the Graphics the demo draws on. It only counts frames.
type frameSurface struct {
	frames atomic.Int64
}

func (s *frameSurface) Frames() int64 { return s.frames.Load() }

// App is the top-level demo task: it redraws every frame interval and on
// resolution changes, and quits on QuitEvent or Escape/Q.
type App struct {
	core.TaskBase

	frameInterval time.Duration
	surface       *frameSurface
	drawables     []core.Drawable
	logger        core.Logger
	quit          func()
}

func newApp(frameInterval time.Duration, logger core.Logger, quit func()) *App {
	return &App{
		frameInterval: frameInterval,
		surface:       &frameSurface{},
		logger:        logger,
		quit:          quit,
	}
}

// AddDrawable registers d to be drawn every frame, in registration order.
func (a *App) AddDrawable(d core.Drawable) {
	a.drawables = append(a.drawables, d)
}

// Frames returns how many frames have been drawn.
func (a *App) Frames() int64 { return a.surface.Frames() }

func (a *App) TaskName() string { return "app" }

func (a *App) Accepts(t core.EventType) bool {
	switch t {
	case core.QuitEvent, core.KeyDownEvent, core.KeyUpEvent, core.ResolutionChange:
		return true
	default:
		return false
	}
}

func (a *App) Run(e core.Event) core.TaskState {
	switch e.Type() {
	case core.ResolutionChange:
		a.draw()
	case core.Timeout:
		a.draw()
		return core.Sleep(a.frameInterval)
	case core.QuitEvent:
		return a.stop("quit event")
	case core.KeyDownEvent:
		switch e.Key() {
		case core.KeyEscape, core.KeyQ:
			return a.stop("key " + e.Key().String())
		}
	}
	return core.Continue()
}

func (a *App) draw() {
	for _, d := range a.drawables {
		d.Draw(a.surface)
	}
	n := a.surface.frames.Add(1)
	a.logger.Debug("frame drawn", core.F("frame", n))
}

func (a *App) stop(reason string) core.TaskState {
	a.logger.Info("app quitting", core.F("reason", reason), core.F("frames", a.Frames()))
	if a.quit != nil {
		a.quit()
	}
	return core.Finished()
}

// spinner is a Drawable that advances one step per frame.
type spinner struct {
	step int
}

func (s *spinner) Draw(g core.Graphics) {
	if _, ok := g.(*frameSurface); ok {
		s.step = (s.step + 1) % 4
	}
}
