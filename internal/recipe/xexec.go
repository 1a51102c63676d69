package recipe

import (
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"
)

// LookPath is overridable in tests.
var LookPath = exec.LookPath

func validateXExec(value *yaml.Node, line int, r *report) *XExec {
	if value.Kind != yaml.MappingNode {
		r.errorf("x_exec", line, "'x_exec' field must be a mapping")
		return nil
	}
	var x XExec
	if err := value.Decode(&x); err != nil {
		r.errorf("x_exec", line, "x_exec: %v", err)
		return nil
	}
	ok := true
	if strings.TrimSpace(x.Shell) == "" {
		r.errorf("x_exec.shell", line, "'shell' is required")
		ok = false
	} else if _, err := LookPath(x.Shell); err != nil {
		r.errorf("x_exec.shell", line, "shell %q not found on PATH", x.Shell)
		ok = false
	}
	if strings.TrimSpace(x.Run) == "" {
		r.errorf("x_exec.run", line, "'run' must be a non-empty string")
		ok = false
	}
	for _, a := range x.Arch {
		if !contains(ValidArch, a) {
			r.errorf("x_exec.arch", line, "invalid arch %q", a)
			ok = false
		}
	}
	for _, o := range x.OS {
		if !contains(ValidOS, o) {
			r.errorf("x_exec.os", line, "invalid os %q", o)
			ok = false
		}
	}
	for _, h := range x.Host {
		arch, osName, found := strings.Cut(h, "-")
		if !found || !contains(ValidArch, arch) || !contains(ValidOS, osName) {
			r.errorf("x_exec.host", line, "invalid host %q, must be arch-os", h)
			ok = false
		}
	}
	if !ok {
		return nil
	}
	return &x
}
