package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/karkul/virt-create/internal/vm"
)

// YAMLFormatter formats VM listings as YAML.
type YAMLFormatter struct{}

// FormatVMList formats a list of VMs as a YAML sequence.
func (f *YAMLFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}

	data, err := yaml.Marshal(vms)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VMs to YAML: %w", err)
	}

	return string(data), nil
}
