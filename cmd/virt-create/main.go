package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/karkul/virt-create/internal/config"
	"github.com/karkul/virt-create/internal/output"
	"github.com/karkul/virt-create/internal/virt"
	"github.com/karkul/virt-create/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "virt-create",
	Short: "virt-create - Libvirt VM provisioning tool",
	Long: `virt-create provisions libvirt VMs from a base template image.

Given a name, resources, and a static IP it builds the disk, generates
cloud-init seed media, defines the domain, and waits for the guest to
come up on its address.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

var (
	configPath   string
	autoApprove  bool
	outputFormat string
	noHeaders    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to environment config file (defaults apply when unset)")

	createCmd.Flags().BoolVarP(&autoApprove, "yes", "y", false, "overwrite an existing VM without prompting")
	listCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	listCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit headers in table output")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(testConnCmd)
}

// loadEnvironment resolves the environment config: the --config file when
// given, built-in defaults otherwise.
func loadEnvironment() (*config.Environment, error) {
	if configPath == "" {
		return config.DefaultEnvironment(), nil
	}
	env, err := config.LoadEnvironment(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	return env, nil
}

var createCmd = &cobra.Command{
	Use:   "create <name> <memory_mb> <vcpus> <disk_gb> <ip>",
	Short: "Provision a VM",
	Long: `Provision a new virtual machine from the base template image.

All five arguments are required:
  name       VM and host name
  memory_mb  memory in MiB
  vcpus      number of virtual CPUs
  disk_gb    disk size in GB
  ip         static IPv4 address for the guest

If a VM with the same name already exists you are asked before it is
replaced; --yes skips the prompt. The command blocks until the guest
answers on its address, then ejects the seed media.`,
	Args: cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := config.ParseRequest(args)
		if err != nil {
			return err
		}

		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		var confirm vm.Confirmer = &vm.TerminalConfirmer{In: os.Stdin, Out: os.Stdout}
		if autoApprove {
			confirm = vm.AutoApprove{}
		}

		fmt.Printf("Provisioning VM %s (%d MiB, %d vcpus, %d GB, %s)\n",
			req.Name, req.MemoryMB, req.VCPUs, req.DiskGB, req.IP)

		if err := vm.Provision(context.Background(), req, env, confirm); err != nil {
			if errors.Is(err, vm.ErrAborted) {
				return err
			}
			return fmt.Errorf("failed to provision VM: %w", err)
		}

		fmt.Println("✓ VM provisioned successfully!")
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <vm-name>",
	Short: "Destroy a VM",
	Long: `Destroy a virtual machine by name.

This will:
- Stop the VM if running (graceful shutdown, then force stop)
- Undefine the domain
- Remove the VM workspace directory`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		vmName := args[0]
		fmt.Printf("Destroying VM: %s\n", vmName)

		if err := vm.Destroy(context.Background(), vmName, env); err != nil {
			return fmt.Errorf("failed to destroy VM: %w", err)
		}

		fmt.Println("✓ VM destroyed successfully!")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs",
	Long: `List all virtual machines known to the hypervisor.

Shows name, state, resources, and for VMs provisioned by this tool the
assigned IP and age.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		vms, err := vm.List(context.Background(), env)
		if err != nil {
			return fmt.Errorf("failed to list VMs: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		rendered, err := formatter.FormatVMList(vms)
		if err != nil {
			return fmt.Errorf("failed to format VM list: %w", err)
		}

		fmt.Print(rendered)
		return nil
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		fmt.Println("Testing libvirt connection...")

		client, err := virt.Connect(env.LibvirtSocket, 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		// libvirt returns the version as an integer like 8006000 for 8.6.0
		libVersion, err := client.Libvirt().ConnectGetLibVersion()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}

		major := libVersion / 1000000
		minor := (libVersion % 1000000) / 1000
		patch := libVersion % 1000

		fmt.Printf("✓ Libvirt version: %d.%d.%d\n", major, minor, patch)

		hostname, err := client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}

		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

		uri, err := client.Libvirt().ConnectGetUri()
		if err != nil {
			return fmt.Errorf("failed to get connection URI: %w", err)
		}

		fmt.Printf("✓ Connection URI: %s\n", uri)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
