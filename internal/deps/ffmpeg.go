package deps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// bundleSubdir is the directory packaged builds ship ffmpeg/ffprobe in,
// alongside the splicer executable.
const bundleSubdir = "ffmpeg"

// ResolveTool returns the binary splicer should execute for the configured
// tool name. Explicit paths are returned unchanged. Bare names prefer a copy
// bundled next to the running executable and fall back to PATH lookup; if
// nothing is found the bare name is returned so exec reports the failure.
func ResolveTool(configured string) string {
	exe, err := os.Executable()
	if err != nil {
		return resolveFrom("", configured)
	}
	return resolveFrom(filepath.Dir(exe), configured)
}

func resolveFrom(bundleDir, configured string) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		return ""
	}
	if strings.ContainsAny(name, `/\`) {
		return name
	}
	if bundleDir != "" {
		file := executableName(name)
		for _, candidate := range []string{
			filepath.Join(bundleDir, file),
			filepath.Join(bundleDir, bundleSubdir, file),
		} {
			if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
				return candidate
			}
		}
	}
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}

// CheckTool reports availability of a resolved tool binary.
func CheckTool(name, configured, description string) Status {
	resolved := ResolveTool(configured)
	statuses := CheckBinaries([]Requirement{{
		Name:        name,
		Command:     resolved,
		Description: description,
	}})
	return statuses[0]
}

// VersionInfo describes the outcome of a `-version` probe.
type VersionInfo struct {
	Path      string
	Available bool
	Version   string
	Detail    string
}

// ToolVersion runs `<binary> -version` and returns the first output line.
func ToolVersion(ctx context.Context, binary string) VersionInfo {
	info := VersionInfo{Path: binary}
	if strings.TrimSpace(binary) == "" {
		info.Detail = "command not configured"
		return info
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(checkCtx, binary, "-version") //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		info.Detail = fmt.Sprintf("%s -version failed: %s", binary, detail)
		return info
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	info.Available = true
	info.Version = strings.TrimSpace(line)
	return info
}

func executableName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
