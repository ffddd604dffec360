package virt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/karkul/virt-create/internal/config"
	"github.com/karkul/virt-create/internal/naming"
)

// seedCDROMTarget is the guest device the seed ISO is attached as. The
// target address must stay stable between install and ejection so the
// device-update XML matches the defined device.
const (
	seedCDROMDev = "hdc"
	seedCDROMBus = "ide"
)

// GenerateDomainXML generates import-mode domain XML for a provisioning
// request: the populated disk is attached as the virtio boot disk and the
// seed ISO as a read-only CD-ROM, so the domain boots the imported image
// directly with no installer phase.
func GenerateDomainXML(req *config.Request, env *config.Environment, diskPath, seedISOPath string) (string, error) {
	if req == nil {
		return "", fmt.Errorf("provisioning request cannot be nil")
	}
	if env == nil {
		return "", fmt.Errorf("environment cannot be nil")
	}

	macAddr, err := naming.MACFromIP(req.IP)
	if err != nil {
		return "", fmt.Errorf("failed to calculate MAC address for %s: %w", req.IP, err)
	}

	ifaceName, err := naming.InterfaceNameFromIP(req.IP)
	if err != nil {
		return "", fmt.Errorf("failed to calculate interface name for %s: %w", req.IP, err)
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: req.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(req.MemoryMB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(req.VCPUs),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
			PAE:  &libvirtxml.DomainFeature{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
			Model: &libvirtxml.DomainCPUModel{
				Fallback: "allow",
			},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			Disks: []libvirtxml.DomainDisk{
				dataDisk(diskPath),
				seedCDROM(seedISOPath),
			},
			Interfaces: []libvirtxml.DomainInterface{
				{
					MAC: &libvirtxml.DomainInterfaceMAC{
						Address: macAddr,
					},
					Source: &libvirtxml.DomainInterfaceSource{
						Bridge: &libvirtxml.DomainInterfaceSourceBridge{
							Bridge: env.Bridge,
						},
					},
					Model: &libvirtxml.DomainInterfaceModel{
						Type: "virtio",
					},
					Target: &libvirtxml.DomainInterfaceTarget{
						Dev: ifaceName,
					},
				},
			},
			Serials: []libvirtxml.DomainSerial{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainSerialTarget{
						Port: func() *uint { p := uint(0); return &p }(),
					},
				},
			},
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainConsoleTarget{
						Type: "serial",
						Port: func() *uint { p := uint(0); return &p }(),
					},
				},
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

// dataDisk builds the virtio boot disk attached from the workspace.
func dataDisk(diskPath string) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name:  "qemu",
			Type:  "qcow2",
			Cache: "none",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{
				File: diskPath,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "vda",
			Bus: "virtio",
		},
		Boot: &libvirtxml.DomainDeviceBoot{
			Order: 1,
		},
	}
}

// seedCDROM builds the seed ISO CD-ROM device.
func seedCDROM(seedISOPath string) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: "cdrom",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "raw",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{
				File: seedISOPath,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: seedCDROMDev,
			Bus: seedCDROMBus,
		},
		ReadOnly: &libvirtxml.DomainDiskReadOnly{},
	}
}

// GenerateEjectedSeedXML generates device XML for the seed CD-ROM with no
// media attached. Passing this to the domain's update-device operation
// ejects the seed ISO while keeping the drive itself in place.
func GenerateEjectedSeedXML() (string, error) {
	disk := libvirtxml.DomainDisk{
		Device: "cdrom",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "raw",
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: seedCDROMDev,
			Bus: seedCDROMBus,
		},
		ReadOnly: &libvirtxml.DomainDiskReadOnly{},
	}

	xml, err := disk.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal eject XML: %w", err)
	}

	return xml, nil
}
