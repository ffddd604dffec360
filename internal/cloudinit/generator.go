// Package cloudinit generates the NoCloud seed documents and ISO used to
// configure a guest on first boot.
//
// Two documents are produced: user-data (cloud-config) and meta-data
// (instance identity plus a static ifupdown network block). The target OS
// images consume the classic NoCloud network-interfaces format, so network
// configuration lives in meta-data rather than a separate network-config
// document.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/karkul/virt-create/internal/config"
	"github.com/karkul/virt-create/internal/naming"
)

// UserData represents the cloud-config user-data structure. Marshaled to
// YAML and prefixed with the "#cloud-config" header.
type UserData struct {
	Hostname          string    `yaml:"hostname"`
	FQDN              string    `yaml:"fqdn"`
	ManageEtcHosts    bool      `yaml:"manage_etc_hosts"`
	SSHAuthorizedKeys []string  `yaml:"ssh_authorized_keys,omitempty"`
	SSHPasswordAuth   bool      `yaml:"ssh_pwauth"`
	SSHDeleteKeys     bool      `yaml:"ssh_deletekeys"`
	Chpasswd          *Chpasswd `yaml:"chpasswd,omitempty"`
	Runcmd            []string  `yaml:"runcmd,omitempty"`
}

// Chpasswd configures guest password policy.
type Chpasswd struct {
	Expire bool `yaml:"expire"`
}

// MetaData represents the cloud-init meta-data structure. NetworkInterfaces
// holds the ifupdown-style static addressing block as a literal YAML block
// scalar.
type MetaData struct {
	InstanceID        string `yaml:"instance-id"`
	LocalHostname     string `yaml:"local-hostname"`
	NetworkInterfaces string `yaml:"network-interfaces"`
}

// GenerateUserData generates the user-data content for a provisioning
// request. The runcmd entries perform the post-boot edits the base template
// needs: drop the template's persistent NIC naming, fix the interface config
// file, and remove cloud-init so it does not re-run on later boots.
func GenerateUserData(req *config.Request, env *config.Environment) (string, error) {
	if req == nil {
		return "", fmt.Errorf("provisioning request cannot be nil")
	}
	if env == nil {
		return "", fmt.Errorf("environment cannot be nil")
	}

	userData := UserData{
		Hostname:        req.Name,
		FQDN:            req.FQDN(env),
		ManageEtcHosts:  true,
		SSHPasswordAuth: false,
		SSHDeleteKeys:   true,
		Chpasswd:        &Chpasswd{Expire: false},
		Runcmd: []string{
			"sed -i '/^HWADDR/d' /etc/sysconfig/network-scripts/ifcfg-eth0",
			"rm -f /etc/udev/rules.d/70-persistent-net.rules",
			fmt.Sprintf("hostnamectl set-hostname %s || hostname %s", req.FQDN(env), req.FQDN(env)),
			"yum remove -y cloud-init",
		},
	}

	if env.AuthorizedKey != "" {
		userData.SSHAuthorizedKeys = []string{env.AuthorizedKey}
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	// cloud-init only treats the document as cloud-config with this header
	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData generates the meta-data content for a provisioning
// request.
//
// The instance-id carries a fresh random suffix each run so cloud-init
// treats an overwritten VM as a new instance and re-applies first-boot
// configuration. The network block assumes a /24: network and broadcast are
// derived from the first three octets of the guest IP.
func GenerateMetaData(req *config.Request, env *config.Environment) (string, error) {
	if req == nil {
		return "", fmt.Errorf("provisioning request cannot be nil")
	}
	if env == nil {
		return "", fmt.Errorf("environment cannot be nil")
	}

	block, err := networkInterfacesBlock(req, env)
	if err != nil {
		return "", err
	}

	metaData := MetaData{
		InstanceID:        fmt.Sprintf("%s-%s", req.Name, uuid.NewString()[:8]),
		LocalHostname:     req.Name,
		NetworkInterfaces: block,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}

// networkInterfacesBlock renders the static eth0 addressing block.
func networkInterfacesBlock(req *config.Request, env *config.Environment) (string, error) {
	network, err := naming.NetworkFromIP(req.IP)
	if err != nil {
		return "", fmt.Errorf("failed to derive network address: %w", err)
	}

	broadcast, err := naming.BroadcastFromIP(req.IP)
	if err != nil {
		return "", fmt.Errorf("failed to derive broadcast address: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "auto eth0\n")
	fmt.Fprintf(&b, "iface eth0 inet static\n")
	fmt.Fprintf(&b, "  address %s\n", req.IP)
	fmt.Fprintf(&b, "  network %s\n", network)
	fmt.Fprintf(&b, "  netmask %s\n", env.Netmask)
	fmt.Fprintf(&b, "  broadcast %s\n", broadcast)
	fmt.Fprintf(&b, "  gateway %s\n", env.Gateway)
	if len(env.DNSServers) > 0 {
		fmt.Fprintf(&b, "  dns-nameservers %s\n", strings.Join(env.DNSServers, " "))
	}
	if env.DomainSuffix != "" {
		fmt.Fprintf(&b, "  dns-search %s\n", env.DomainSuffix)
	}

	return b.String(), nil
}
