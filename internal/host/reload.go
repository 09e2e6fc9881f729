package host

import (
	"go.uber.org/zap"

	"github.com/l1jgo/luahost/internal/scripting"
	"github.com/l1jgo/luahost/internal/world"
)

// ReloadAllScripts re-instantiates every attached script from source while
// preserving its state: compiled chunks are dropped, the global container is
// re-seeded from the canonical script list, and every entity container does
// an in-place save/load round trip (its attached set is not re-derived from
// any list). A script that fails to come back is logged and absent
// afterwards; reload never aborts on one script.
func (m *Manager) ReloadAllScripts() {
	m.env.DropScriptCache()

	var d scripting.Data
	m.global.Save(&d)
	m.global.RemoveAllScripts()
	for _, path := range m.scripts.GlobalPaths() {
		if !m.global.AddNewScript(path) {
			m.log.Error("global script lost on reload", zap.String("script", path))
		}
	}
	m.global.Load(d, false)

	m.registry.Each(func(e *world.Entity) {
		c := e.Ref.Scripts
		if c == nil {
			return
		}
		var ld scripting.Data
		c.Save(&ld)
		c.Load(ld, true)
	})

	m.log.Info("scripts reloaded", zap.Int("globalScripts", m.global.ScriptCount()))
}
