package codec

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"net/netip"
	"regexp"
	"strings"

	"netsketch/internal/domain"
	"netsketch/internal/oui"
	"netsketch/internal/topology"
)

var (
	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	macPattern  = regexp.MustCompile(`(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}`)
	multicast   = netip.MustParsePrefix("224.0.0.0/4")
)

// ARPCodec extracts devices from pasted `arp -a` style text. It never touches
// the network: presence is taken from the text and latency is a placeholder.
type ARPCodec struct {
	// Latency returns the placeholder latency for each parsed device
	Latency func() float64
	// Vendors resolves MAC prefixes; the embedded table is used when nil
	Vendors *oui.DB
}

// NewARPCodec creates a new ARP text codec
func NewARPCodec() *ARPCodec {
	return &ARPCodec{
		Latency: func() float64 { return float64(1 + rand.IntN(20)) },
	}
}

// Format returns the codec format identifier
func (c *ARPCodec) Format() string {
	return "arp"
}

// Parse reads r line by line. A line yields a device only when it carries both
// an IPv4 address and a MAC address. Multicast and .255 addresses are skipped
// and repeated addresses keep their first occurrence. The result is already
// rooted under the elected router.
func (c *ARPCodec) Parse(r io.Reader) ([]domain.Device, error) {
	devices := make([]domain.Device, 0)
	seen := make(map[netip.Addr]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		addr, ok := findIPv4(line)
		if !ok {
			continue
		}
		mac := macPattern.FindString(line)
		if mac == "" {
			continue
		}
		if multicast.Contains(addr) || addr.As4()[3] == 255 {
			continue
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true

		devices = append(devices, c.lineDevice(addr, mac))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ARP text: %w", err)
	}

	if len(devices) == 0 {
		return devices, nil
	}
	return topology.Attach(devices, topology.AttachOptions{}), nil
}

// findIPv4 returns the first dotted quad on the line with valid octets
func findIPv4(line string) (netip.Addr, bool) {
	for _, candidate := range ipv4Pattern.FindAllString(line, -1) {
		addr, err := netip.ParseAddr(candidate)
		if err == nil && addr.Is4() {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func (c *ARPCodec) lineDevice(addr netip.Addr, mac string) domain.Device {
	octets := addr.As4()
	mac = strings.ToLower(strings.ReplaceAll(mac, "-", ":"))

	kind := domain.KindPC
	name := addr.String()
	if octets[3] == 1 || octets[3] == 254 {
		kind = domain.KindRouter
		name = "Gateway"
	}

	vendor := oui.Lookup(mac)
	if c.Vendors != nil {
		vendor = c.Vendors.Lookup(mac)
	}

	d := domain.Device{
		ID:              fmt.Sprintf("arp-%d-%d-%d-%d", octets[0], octets[1], octets[2], octets[3]),
		Address:         addr.String(),
		HardwareAddress: mac,
		DisplayName:     name,
		Vendor:          vendor,
		Kind:            kind,
		State:           domain.StateOnline,
	}
	if c.Latency != nil {
		d = d.WithLatency(c.Latency())
	}
	return d
}
