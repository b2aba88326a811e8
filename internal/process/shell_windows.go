//go:build windows

package process

// ScriptSpec returns the spec that runs a batch launch script found in dir,
// e.g. "cmd.exe /c run.bat nogui".
func ScriptSpec(name, dir, script string, args ...string) Spec {
	return Spec{
		Name:    name,
		Command: "cmd.exe",
		Args:    append([]string{"/c", script}, args...),
		WorkDir: dir,
	}
}
