// Package lua hosts sandboxed gopher-lua states for user scripts.
//
// A State opens only the base, table, string and math libraries and removes
// the functions that load code (dofile, loadfile, load, require). Every
// execution runs under a timeout enforced through the state's context:
//
//	s := lua.NewState(lua.WithExecutionTimeout(time.Second))
//	defer s.Close()
//	if err := s.DoString(ctx, `function double(x) return 2 * x end`); err != nil {
//		return err
//	}
//	out, err := s.Call(ctx, golua.LString("double"), golua.LNumber(21))
package lua
