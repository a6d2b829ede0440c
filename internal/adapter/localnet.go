package adapter

import (
	"net"
	"net/netip"
	"sort"
	"strings"
)

// LocalPrefix is a /24 the host itself sits in
type LocalPrefix struct {
	Interface string `json:"interface"`
	Address   string `json:"ip"`
	Prefix    string `json:"prefix"`
	Private   bool   `json:"private"`
}

// virtualPrefixes are interface name prefixes used by container runtimes
var virtualPrefixes = []string{"veth", "docker", "br-", "cni", "flannel", "virbr"}

// DetectPrefixes lists the /24 prefixes of the host's active IPv4 interfaces.
// Loopback, down and container interfaces are skipped. Private (RFC 1918)
// prefixes sort first.
func DetectPrefixes() ([]LocalPrefix, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var found []LocalPrefix
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 || isVirtual(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipnet.IP.To4())
			if !ok {
				continue
			}
			if p, ok := localPrefix(iface.Name, addr); ok {
				found = append(found, p)
			}
		}
	}
	return sortPrefixes(found), nil
}

func localPrefix(name string, addr netip.Addr) (LocalPrefix, bool) {
	if !addr.Is4() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return LocalPrefix{}, false
	}
	o := addr.As4()
	base := [3]byte{o[0], o[1], o[2]}
	if checkPrefix(base, addr.String()) != nil {
		return LocalPrefix{}, false
	}
	return LocalPrefix{
		Interface: name,
		Address:   addr.String(),
		Prefix:    FormatPrefix(base),
		Private:   addr.IsPrivate(),
	}, true
}

func sortPrefixes(found []LocalPrefix) []LocalPrefix {
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Private && !found[j].Private
	})
	return found
}

func isVirtual(name string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
