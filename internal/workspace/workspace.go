// Package workspace manages the per-VM directory holding all artifacts of a
// provisioning run: the disk image, the seed documents and ISO, and the run
// log that external tool invocations append to.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/karkul/virt-create/internal/naming"
)

const (
	// DirPermissions are the permissions for VM workspace directories.
	DirPermissions = 0o755

	// FilePermissions are the permissions for generated artifact files.
	FilePermissions = 0o644
)

// Manager handles workspace operations under a fixed base directory. One
// directory per VM name; a run owns its directory exclusively.
type Manager struct {
	base string
}

// NewManager creates a workspace manager rooted at base.
func NewManager(base string) *Manager {
	return &Manager{base: base}
}

// Path returns the workspace directory for a VM name.
func (m *Manager) Path(vmName string) string {
	return filepath.Join(m.base, vmName)
}

// DiskPath returns the path of the VM's disk image.
func (m *Manager) DiskPath(vmName string) string {
	return filepath.Join(m.base, vmName, naming.DiskFileName)
}

// SeedISOPath returns the path of the cloud-init seed ISO.
func (m *Manager) SeedISOPath(vmName string) string {
	return filepath.Join(m.base, vmName, naming.SeedISOFileName)
}

// UserDataPath returns the path of the generated user-data document.
func (m *Manager) UserDataPath(vmName string) string {
	return filepath.Join(m.base, vmName, naming.UserDataFileName)
}

// MetaDataPath returns the path of the generated meta-data document.
func (m *Manager) MetaDataPath(vmName string) string {
	return filepath.Join(m.base, vmName, naming.MetaDataFileName)
}

// LogPath returns the path of the run log.
func (m *Manager) LogPath(vmName string) string {
	return filepath.Join(m.base, vmName, naming.LogFileName)
}

// Exists reports whether a workspace directory exists for the VM name.
func (m *Manager) Exists(vmName string) (bool, error) {
	info, err := os.Stat(m.Path(vmName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check workspace %s: %w", m.Path(vmName), err)
	}
	return info.IsDir(), nil
}

// Recreate deletes any existing workspace for the VM name and creates a
// fresh one with an empty run log. There is no incremental reuse: every run
// starts from an empty directory.
func (m *Manager) Recreate(vmName string) error {
	dir := m.Path(vmName)

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove existing workspace %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	logFile, err := os.OpenFile(m.LogPath(vmName), os.O_CREATE|os.O_WRONLY, FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create run log: %w", err)
	}
	if err := logFile.Close(); err != nil {
		return fmt.Errorf("failed to close run log: %w", err)
	}

	return nil
}

// WriteDocuments writes the user-data and meta-data documents into the
// workspace.
func (m *Manager) WriteDocuments(vmName, userData, metaData string) error {
	if err := os.WriteFile(m.UserDataPath(vmName), []byte(userData), FilePermissions); err != nil {
		return fmt.Errorf("failed to write user-data: %w", err)
	}
	if err := os.WriteFile(m.MetaDataPath(vmName), []byte(metaData), FilePermissions); err != nil {
		return fmt.Errorf("failed to write meta-data: %w", err)
	}
	return nil
}

// WriteSeedISO writes the packaged seed ISO into the workspace.
func (m *Manager) WriteSeedISO(vmName string, isoData []byte) error {
	if len(isoData) == 0 {
		return fmt.Errorf("ISO data cannot be empty")
	}
	if err := os.WriteFile(m.SeedISOPath(vmName), isoData, FilePermissions); err != nil {
		return fmt.Errorf("failed to write seed ISO: %w", err)
	}
	return nil
}

// RemoveSeedArtifacts deletes the seed documents and ISO after the guest has
// booted. The disk image and run log stay. Missing files are not an error so
// cleanup can be retried.
func (m *Manager) RemoveSeedArtifacts(vmName string) error {
	for _, path := range []string{
		m.UserDataPath(vmName),
		m.MetaDataPath(vmName),
		m.SeedISOPath(vmName),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// Delete removes the entire workspace directory. A missing workspace is not
// an error.
func (m *Manager) Delete(vmName string) error {
	dir := m.Path(vmName)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", dir, err)
	}
	return nil
}

// AppendLog appends a line to the run log. Used for progress records that
// should survive alongside the external tool output.
func (m *Manager) AppendLog(vmName, line string) error {
	f, err := os.OpenFile(m.LogPath(vmName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to append to run log: %w", err)
	}
	return nil
}
