package recipe

import (
	"fmt"
	"os"
	"os/exec"
)

// runShellcheck writes script to a temp file and runs `shellcheck
// --severity={severity}` against it, per §4.A "Shellcheck".
func runShellcheck(script, severity string) error {
	f, err := os.CreateTemp("", "sbuild-shellcheck-*.sh")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	cmd := exec.Command("shellcheck", fmt.Sprintf("--severity=%s", severity), tmp)
	return cmd.Run()
}

// Shellcheck runs error-severity shellcheck (fatal on failure) followed by a
// best-effort warning-severity pass (informational only).
func Shellcheck(shell, body string) error {
	script := fmt.Sprintf("#!/usr/bin/env %s\n%s", shell, body)
	if err := runShellcheck(script, "error"); err != nil {
		return fmt.Errorf("shellcheck emitted errors: %w", err)
	}
	_ = runShellcheck(script, "warning")
	return nil
}
