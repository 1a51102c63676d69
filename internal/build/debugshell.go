package build

import (
	"log"
	"os"
	"os/exec"
)

// maybeStartDebugShell drops into an interactive shell when b.Debug names
// the phase just completed, letting a developer poke at outdir before the
// pipeline continues.
func (b *Ctx) maybeStartDebugShell(phase Phase, env []string) {
	if b.Debug != phase {
		return
	}
	log.Printf("starting debug shell because -debug=%s", b.Debug)
	cmd := exec.Command("bash", "-i")
	if env != nil {
		cmd.Env = env
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		log.Printf("debug command failed: %v", err)
	}
}
