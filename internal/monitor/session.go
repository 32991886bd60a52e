package monitor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bnema/displaymgr/internal/logger"
)

// sessionCommand builds a command for a session helper tool. When the
// daemon runs under sudo the helper still needs the invoking user's
// Wayland environment.
func sessionCommand(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)

	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" || os.Geteuid() != 0 {
		return cmd
	}

	logger.Debugf("Running %s with sudo, SUDO_USER=%s", name, sudoUser)

	sudoUID := os.Getenv("SUDO_UID")
	if sudoUID == "" {
		uidCmd := exec.Command("id", "-u", sudoUser)
		if uidOutput, err := uidCmd.Output(); err == nil {
			sudoUID = strings.TrimSpace(string(uidOutput))
		}
	}

	runtimeDir := fmt.Sprintf("/run/user/%s", sudoUID)
	cmd.Env = append(os.Environ(), fmt.Sprintf("XDG_RUNTIME_DIR=%s", runtimeDir))

	waylandDisplay := ""
	if files, err := os.ReadDir(runtimeDir); err == nil {
		for _, file := range files {
			if strings.HasPrefix(file.Name(), "wayland-") && !strings.HasSuffix(file.Name(), ".lock") {
				waylandDisplay = file.Name()
				break
			}
		}
	} else {
		logger.Warnf("Could not read socket directory %s: %v", runtimeDir, err)
	}

	if waylandDisplay == "" {
		waylandDisplay = os.Getenv("WAYLAND_DISPLAY")
	}
	if waylandDisplay != "" {
		cmd.Env = append(cmd.Env, fmt.Sprintf("WAYLAND_DISPLAY=%s", waylandDisplay))
	} else {
		logger.Warn("Could not detect WAYLAND_DISPLAY for sudo session")
	}

	return cmd
}
