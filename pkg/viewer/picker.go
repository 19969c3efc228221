package viewer

import (
	"os/exec"
	"runtime"
	"strings"
)

// OSPicker shows a native file/directory chooser and blocks until the
// user answers. The page is paused by design while the dialog is up.
// Returns ok=false when no picker tool is available or the user
// cancelled.
func OSPicker(kind string) (string, bool) {
	if runtime.GOOS == "darwin" {
		return osascriptPicker(kind)
	}
	return zenityPicker(kind)
}

func osascriptPicker(kind string) (string, bool) {
	var script string
	switch kind {
	case "directory":
		script = `POSIX path of (choose folder)`
	case "save":
		script = `POSIX path of (choose file name)`
	default:
		script = `POSIX path of (choose file)`
	}
	out, err := exec.Command("osascript", "-e", script).Output()
	if err != nil {
		return "", false
	}
	path := strings.TrimSpace(string(out))
	return path, path != ""
}

func zenityPicker(kind string) (string, bool) {
	args := []string{"--file-selection"}
	switch kind {
	case "directory":
		args = append(args, "--directory")
	case "save":
		args = append(args, "--save")
	}
	out, err := exec.Command("zenity", args...).Output()
	if err != nil {
		return "", false
	}
	path := strings.TrimSpace(string(out))
	return path, path != ""
}
