package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterTimerCallback names a function a script may schedule timers
// against. Only registered callbacks survive a save/load cycle, so scripts
// register them at init time, not inside handlers.
func (c *Container) RegisterTimerCallback(scriptPath, name string, fn *lua.LFunction) {
	s, ok := c.byPath[scriptPath]
	if !ok {
		c.log.Warn("timer callback for unattached script",
			zap.String("script", scriptPath), zap.String("callback", name))
		return
	}
	s.timerCallbacks[name] = fn
}

// AddTimer schedules a registered callback at an absolute time on the given
// clock. arg is the already-encoded callback argument.
func (c *Container) AddTimer(scriptPath string, kind TimerKind, at float64, callback string, arg []byte) {
	c.timers = append(c.timers, TimerData{
		Script:   scriptPath,
		Kind:     kind,
		At:       at,
		Callback: callback,
		Arg:      arg,
	})
}

// ProcessTimers fires every pending timer whose deadline has passed on its
// clock. A timer fires exactly once and is removed whether or not its
// callback still exists; a missing script or callback is logged and dropped.
func (c *Container) ProcessTimers(simSeconds, gameHours float64) {
	if len(c.timers) == 0 {
		return
	}
	remaining := c.timers[:0]
	var due []TimerData
	for _, tm := range c.timers {
		now := simSeconds
		if tm.Kind == TimerHours {
			now = gameHours
		}
		if tm.At <= now {
			due = append(due, tm)
		} else {
			remaining = append(remaining, tm)
		}
	}
	c.timers = remaining

	for _, tm := range due {
		c.fireTimer(tm)
	}
}

func (c *Container) fireTimer(tm TimerData) {
	s, ok := c.byPath[tm.Script]
	if !ok {
		c.log.Warn("timer for unattached script", zap.String("script", tm.Script))
		return
	}
	fn, ok := s.timerCallbacks[tm.Callback]
	if !ok {
		c.log.Warn("timer callback not registered",
			zap.String("script", tm.Script), zap.String("callback", tm.Callback))
		return
	}
	arg, err := c.decode(tm.Arg)
	if err != nil {
		c.log.Error("timer argument decode failed",
			zap.String("script", tm.Script), zap.Error(err))
		return
	}
	c.call(tm.Script, fn, 0, arg)
}

// PendingTimers reports how many timers are waiting to fire.
func (c *Container) PendingTimers() int { return len(c.timers) }
