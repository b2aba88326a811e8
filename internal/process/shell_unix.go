//go:build !windows

package process

// ScriptSpec returns the spec that runs a launch script found in dir with
// the given arguments, e.g. "bash run.sh nogui".
func ScriptSpec(name, dir, script string, args ...string) Spec {
	return Spec{
		Name:    name,
		Command: "bash",
		Args:    append([]string{script}, args...),
		WorkDir: dir,
	}
}
