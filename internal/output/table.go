package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/karkul/virt-create/internal/vm"
)

// TableFormatter formats VM listings as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVMList formats a list of VMs as a table.
func (f *TableFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tIP\tVCPUs\tMEMORY\tAGE")
	}

	for _, info := range vms {
		// IP and age come from the provisioning record; domains created
		// by other tools have neither
		ip := info.IP
		if ip == "" {
			ip = "-"
		}

		age := "-"
		if !info.ProvisionedAt.IsZero() {
			age = formatAge(time.Since(info.ProvisionedAt))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d MiB\t%s\n",
			info.Name, info.State, ip, info.VCPUs, info.MemoryMB, age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	years := days / 365
	if years > 0 {
		return fmt.Sprintf("%dy", years)
	}

	return fmt.Sprintf("%dd", days)
}
