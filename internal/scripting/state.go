package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Save fills d with the container's persistable state: the attached script
// list with each script's onSave blob, and the pending timers. A script
// without an onSave handler is recorded with an empty blob so the attachment
// itself survives.
func (c *Container) Save(d *Data) {
	d.Scripts = d.Scripts[:0]
	for _, s := range c.scripts {
		sd := ScriptData{Path: s.path}
		if fn := s.engineHandler("onSave"); fn != nil {
			rets := c.call(s.path, fn, 1)
			if len(rets) == 1 && rets[0] != lua.LNil {
				blob, err := c.serializer.Encode(rets[0])
				if err != nil {
					c.log.Error("script state encode failed",
						zap.String("script", s.path), zap.Error(err))
				} else {
					sd.Data = blob
				}
			}
		}
		d.Scripts = append(d.Scripts, sd)
	}
	d.Timers = append(d.Timers[:0], c.timers...)
}

// Load restores the container from a saved snapshot. With resetScriptList
// the attached set is replaced by the snapshot's script list; without it the
// current attachments stay and only receive their saved data. Either way
// every script with a blob gets onLoad, and pending timers are rebuilt with
// their arguments re-encoded through the active serializer so that any
// content-file remapping the serializer carries is applied exactly once.
func (c *Container) Load(data Data, resetScriptList bool) {
	if resetScriptList {
		c.RemoveAllScripts()
		for _, sd := range data.Scripts {
			c.AddNewScript(sd.Path)
		}
	} else {
		c.timers = nil
	}

	for _, sd := range data.Scripts {
		s, ok := c.byPath[sd.Path]
		if !ok {
			c.log.Info("saved data for unattached script", zap.String("script", sd.Path))
			continue
		}
		fn := s.engineHandler("onLoad")
		if fn == nil {
			continue
		}
		value, err := c.decode(sd.Data)
		if err != nil {
			c.log.Error("script state decode failed",
				zap.String("script", sd.Path), zap.Error(err))
			continue
		}
		c.call(sd.Path, fn, 0, value)
	}

	for _, tm := range data.Timers {
		if _, ok := c.byPath[tm.Script]; !ok {
			c.log.Warn("dropping timer for unattached script", zap.String("script", tm.Script))
			continue
		}
		if len(tm.Arg) > 0 {
			value, err := c.decode(tm.Arg)
			if err != nil {
				c.log.Error("timer argument decode failed",
					zap.String("script", tm.Script), zap.Error(err))
				continue
			}
			arg, err := c.serializer.Encode(value)
			if err != nil {
				c.log.Error("timer argument re-encode failed",
					zap.String("script", tm.Script), zap.Error(err))
				continue
			}
			tm.Arg = arg
		}
		c.timers = append(c.timers, tm)
	}
}
