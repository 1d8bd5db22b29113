//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detach puts the server in its own process group so Ctrl+C in the CLI's
// terminal does not reach it
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
