package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua table into L.
//
// engine.log(level, msg) writes msg to the resolver's logger; level is one of
// "debug", "info", "warn", "error" and defaults to info.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (r *Resolver) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", L.NewFunction(r.luaLog))
	L.SetGlobal("engine", engine)
}

func (r *Resolver) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.OptString(2, "")
	log := r.logger.With(zap.String("source", "lua"))
	switch level {
	case "debug":
		log.Debug(msg)
	case "warn":
		log.Warn(msg)
	case "error":
		log.Error(msg)
	default:
		log.Info(msg)
	}
	return 0
}
