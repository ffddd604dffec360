// Package image builds the VM disk image by driving the external qemu-img
// and virt-resize tools. Tool output is captured and appended to the
// workspace run log; a non-zero exit from either tool aborts provisioning.
package image

import (
	"fmt"
	"os"
	"os/exec"
)

// commandRunner executes an external command and returns its combined
// stdout/stderr. Satisfied by execRunner in production and by mocks in
// tests.
type commandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

// execRunner runs commands via os/exec.
type execRunner struct{}

func (execRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// Builder creates and populates disk images inside a workspace.
type Builder struct {
	runner  commandRunner
	logPath string
}

// NewBuilder creates a Builder whose tool invocations append their output to
// the log file at logPath.
func NewBuilder(logPath string) *Builder {
	return &Builder{runner: execRunner{}, logPath: logPath}
}

// CreateDisk allocates a new qcow2 disk image of sizeGB gigabytes with
// metadata preallocation.
func (b *Builder) CreateDisk(diskPath string, sizeGB int) error {
	if sizeGB <= 0 {
		return fmt.Errorf("disk size must be > 0, got %d", sizeGB)
	}

	output, err := b.runner.Run(
		"qemu-img", "create",
		"-f", "qcow2",
		"-o", "preallocation=metadata",
		diskPath,
		fmt.Sprintf("%dG", sizeGB),
	)
	b.appendLog("qemu-img create", output)
	if err != nil {
		return fmt.Errorf("failed to create disk %s: %w\nOutput: %s", diskPath, err, string(output))
	}

	return nil
}

// ImportBase imports the base template image into the new disk, expanding
// the first partition to fill the allocated size.
func (b *Builder) ImportBase(basePath, diskPath string) error {
	if _, err := os.Stat(basePath); err != nil {
		return fmt.Errorf("base image %s is not accessible: %w", basePath, err)
	}

	output, err := b.runner.Run(
		"virt-resize",
		"--expand", "/dev/sda1",
		basePath,
		diskPath,
	)
	b.appendLog("virt-resize", output)
	if err != nil {
		return fmt.Errorf("failed to import base image into %s: %w\nOutput: %s", diskPath, err, string(output))
	}

	return nil
}

// appendLog appends a tool's combined output to the run log. Log failures
// never fail the build; the output is already part of the returned error
// when the tool itself failed.
func (b *Builder) appendLog(tool string, output []byte) {
	if b.logPath == "" {
		return
	}

	f, err := os.OpenFile(b.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintf(f, "--- %s ---\n%s", tool, string(output))
	if len(output) > 0 && output[len(output)-1] != '\n' {
		_, _ = fmt.Fprintln(f)
	}
}
