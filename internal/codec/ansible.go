package codec

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"netsketch/internal/domain"
	"netsketch/internal/oui"
	"netsketch/internal/topology"

	"gopkg.in/yaml.v3"
)

// AnsibleCodec handles Ansible inventory import/export
type AnsibleCodec struct{}

// NewAnsibleCodec creates a new Ansible codec
func NewAnsibleCodec() *AnsibleCodec {
	return &AnsibleCodec{}
}

// Format returns the codec format identifier
func (c *AnsibleCodec) Format() string {
	return "ansible-inventory"
}

// ansibleInventory represents the Ansible inventory structure
type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
	Hosts    map[string]ansibleHost     `yaml:"hosts,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string                 `yaml:"ansible_host,omitempty"`
	Vars        map[string]interface{} `yaml:",inline"`
}

// Parse imports devices from an Ansible inventory. Groups and hosts are read in
// sorted order; a host listed in several groups keeps its first occurrence.
// When no host declares a parent_id var, every host is attached beneath the
// elected router.
func (c *AnsibleCodec) Parse(r io.Reader) ([]domain.Device, error) {
	var inv ansibleInventory
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&inv); err != nil {
		if err == io.EOF {
			return []domain.Device{}, nil
		}
		return nil, fmt.Errorf("failed to parse Ansible inventory: %w", err)
	}

	devices := make([]domain.Device, 0)
	seen := make(map[string]bool)
	explicitParents := false

	add := func(groupName string, hosts map[string]ansibleHost) {
		for _, hostID := range sortedKeys(hosts) {
			if seen[hostID] {
				continue
			}
			seen[hostID] = true
			d := c.hostToDevice(hostID, groupName, hosts[hostID])
			if d.ParentID != "" {
				explicitParents = true
			}
			devices = append(devices, d)
		}
	}

	groupNames := make([]string, 0, len(inv.All.Children))
	for name := range inv.All.Children {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)
	for _, name := range groupNames {
		add(name, inv.All.Children[name].Hosts)
	}
	add("all", inv.All.Hosts)

	if explicitParents || len(devices) == 0 {
		return devices, nil
	}
	return topology.Attach(devices, topology.AttachOptions{}), nil
}

func sortedKeys(hosts map[string]ansibleHost) []string {
	keys := make([]string, 0, len(hosts))
	for k := range hosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// hostToDevice converts an Ansible host to a domain.Device
func (c *AnsibleCodec) hostToDevice(hostID, groupName string, host ansibleHost) domain.Device {
	d := domain.Device{
		ID:          hostID,
		Address:     host.AnsibleHost,
		DisplayName: hostID,
		Vendor:      domain.VendorUnknown,
		Kind:        c.inferKind(groupName, host.Vars),
		State:       domain.StateOnline,
	}

	if mac, ok := host.Vars["mac"].(string); ok {
		d.HardwareAddress = strings.ToLower(mac)
		d.Vendor = oui.Lookup(mac)
	}
	if vendor, ok := host.Vars["vendor"].(string); ok && vendor != "" {
		d.Vendor = vendor
	}
	if name, ok := host.Vars["name"].(string); ok && name != "" {
		d.DisplayName = name
	}
	if parent, ok := host.Vars["parent_id"].(string); ok {
		d.ParentID = parent
	}
	if status, ok := host.Vars["status"].(string); ok {
		d.State = domain.ParseState(status)
	}

	return d
}

// inferKind infers the device kind from host vars and group name
func (c *AnsibleCodec) inferKind(groupName string, vars map[string]interface{}) domain.Kind {
	// device_type is explicit
	if deviceType, ok := vars["device_type"].(string); ok {
		switch strings.ToLower(deviceType) {
		case "router", "gateway", "firewall":
			return domain.KindRouter
		case "switch", "access_point", "ap", "wifi":
			return domain.KindSwitch
		case "controller", "nas", "server":
			return domain.KindServer
		}
		if k := domain.ParseKind(deviceType); k != domain.KindPC {
			return k
		}
	}

	if role, ok := vars["role"].(string); ok {
		roleLower := strings.ToLower(role)
		switch {
		case strings.Contains(roleLower, "router") || strings.Contains(roleLower, "gateway"):
			return domain.KindRouter
		case strings.Contains(roleLower, "switch"):
			return domain.KindSwitch
		case strings.Contains(roleLower, "storage") || strings.Contains(roleLower, "database"):
			return domain.KindServer
		case strings.Contains(roleLower, "printer"):
			return domain.KindPrinter
		}
	}

	groupLower := strings.ToLower(groupName)
	switch {
	case strings.Contains(groupLower, "router") || strings.Contains(groupLower, "network"):
		return domain.KindRouter
	case strings.Contains(groupLower, "switch"):
		return domain.KindSwitch
	case strings.Contains(groupLower, "server") || strings.Contains(groupLower, "infrastructure"):
		return domain.KindServer
	case strings.Contains(groupLower, "printer"):
		return domain.KindPrinter
	case strings.Contains(groupLower, "mobile") || strings.Contains(groupLower, "phone"):
		return domain.KindMobile
	case strings.Contains(groupLower, "iot") || strings.Contains(groupLower, "camera"):
		return domain.KindIoT
	case strings.Contains(groupLower, "cloud"):
		return domain.KindCloud
	}

	return domain.KindPC
}

// Export writes devices as an Ansible inventory grouped by kind
func (c *AnsibleCodec) Export(devices []domain.Device, w io.Writer) error {
	inv := ansibleInventory{
		All: ansibleGroup{
			Children: make(map[string]ansibleGroupDef),
		},
	}

	for _, d := range devices {
		groupName := string(d.Kind) + "s"
		group, ok := inv.All.Children[groupName]
		if !ok {
			group = ansibleGroupDef{Hosts: make(map[string]ansibleHost)}
			inv.All.Children[groupName] = group
		}

		host := ansibleHost{
			AnsibleHost: d.Address,
			Vars: map[string]interface{}{
				"device_type": string(d.Kind),
				"status":      string(d.State),
			},
		}
		if d.HardwareAddress != "" {
			host.Vars["mac"] = d.HardwareAddress
		}
		if d.Vendor != "" {
			host.Vars["vendor"] = d.Vendor
		}
		if d.DisplayName != "" && d.DisplayName != d.ID {
			host.Vars["name"] = d.DisplayName
		}
		if d.ParentID != "" {
			host.Vars["parent_id"] = d.ParentID
		}

		group.Hosts[d.ID] = host
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("failed to encode Ansible inventory: %w", err)
	}

	return nil
}
