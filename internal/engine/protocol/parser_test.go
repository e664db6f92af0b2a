package protocol

import (
	"Go2NetGuard/internal/model"
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
	src4   = net.IP{10, 0, 0, 1}
	dst4   = net.IP{10, 0, 0, 2}
	src6   = net.ParseIP("2001:db8::1")
	dst6   = net.ParseIP("2001:db8::2")
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("Failed to serialize layers: %v", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

func eth(etype layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: etype}
}

func ip4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: src4, DstIP: dst4}
}

func ip6(next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: next, SrcIP: src6, DstIP: dst6}
}

func tcp() *layers.TCP {
	return &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 14600}
}

func udp() *layers.UDP {
	return &layers.UDP{SrcPort: 40000, DstPort: 53}
}

func payload(n int) gopacket.Payload {
	return gopacket.Payload(make([]byte, n))
}

// ipv6ExtUDP builds an Ethernet/IPv6/<ext>/UDP frame by hand.
func ipv6ExtUDP(ext byte) []byte {
	frame := []byte{
		0x00, 0x66, 0x77, 0x88, 0x99, 0xAA, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x86, 0xdd,
		0x60, 0x00, 0x00, 0x00, 0x00, 0x10, ext, 0x40,
	}
	frame = append(frame, src6.To16()...)
	frame = append(frame, dst6.To16()...)
	// options header: next=UDP, len=0, PadN(4)
	frame = append(frame, 17, 0, 0x01, 0x04, 0, 0, 0, 0)
	// UDP header
	frame = append(frame, 0x9c, 0x40, 0x00, 0x35, 0x00, 0x08, 0x00, 0x00)
	return frame
}

func TestClassify_Categories(t *testing.T) {
	dot1q := &layers.Dot1Q{VLANIdentifier: 100, Type: layers.EthernetTypeIPv4}
	icmp4 := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	icmp6 := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: srcMAC, SourceProtAddress: src4,
		DstHwAddress: make([]byte, 6), DstProtAddress: dst4,
	}

	tests := []struct {
		name  string
		frame []byte
		want  model.Category
	}{
		{"ipv4 tcp", serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolTCP), tcp(), payload(32)), model.CategoryTCP},
		{"ipv4 udp", serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolUDP), udp(), payload(32)), model.CategoryUDP},
		{"ipv4 icmp", serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolICMPv4), icmp4, payload(16)), model.CategoryICMP},
		{"ipv6 icmpv6", serialize(t, eth(layers.EthernetTypeIPv6), ip6(layers.IPProtocolICMPv6), icmp6, payload(16)), model.CategoryICMP},
		{"ipv6 tcp", serialize(t, eth(layers.EthernetTypeIPv6), ip6(layers.IPProtocolTCP), tcp()), model.CategoryTCP},
		{"ipv6 udp", serialize(t, eth(layers.EthernetTypeIPv6), ip6(layers.IPProtocolUDP), udp(), payload(8)), model.CategoryUDP},
		{"ipv6 hop-by-hop udp", ipv6ExtUDP(0), model.CategoryUDP},
		{"ipv6 destination options udp", ipv6ExtUDP(60), model.CategoryUDP},
		{"vlan ipv4 udp", serialize(t, eth(layers.EthernetTypeDot1Q), dot1q, ip4(layers.IPProtocolUDP), udp(), payload(8)), model.CategoryUDP},
		{"ipv4 gre", serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolGRE), payload(24)), model.CategoryIPOther},
		{"ipv4 carrying icmpv6", serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolICMPv6), payload(24)), model.CategoryIPOther},
		{"ipv6 no next header", serialize(t, eth(layers.EthernetTypeIPv6), ip6(layers.IPProtocolNoNextHeader), payload(8)), model.CategoryIPOther},
		{"arp", serialize(t, eth(layers.EthernetTypeARP), arp), model.CategoryFrameOther},
	}

	c := NewClassifier(LinkEthernet)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.frame)
			if got.Malformed {
				t.Fatalf("Expected a well-formed frame, got malformed (category %s)", got.Category)
			}
			if got.Category != tt.want {
				t.Errorf("Expected category %s, got %s", tt.want, got.Category)
			}
		})
	}
}

func TestClassify_Malformed(t *testing.T) {
	tcpFrame := serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolTCP), tcp(), payload(32))
	udpFrame := serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolUDP), udp(), payload(32))
	icmpFrame := serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolICMPv4),
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}, payload(16))
	ip6Frame := serialize(t, eth(layers.EthernetTypeIPv6), ip6(layers.IPProtocolTCP), tcp())

	shortIHL := make([]byte, len(tcpFrame))
	copy(shortIHL, tcpFrame)
	shortIHL[14] = 0x44 // version 4, IHL 4

	badOffset := make([]byte, len(tcpFrame))
	copy(badOffset, tcpFrame)
	badOffset[14+20+12] = 0xf0 // data offset 60 bytes, beyond the frame

	vlanCut := serialize(t, eth(layers.EthernetTypeDot1Q))[:ethHeaderLen+2]

	tests := []struct {
		name  string
		frame []byte
		want  model.Category
	}{
		{"empty", nil, model.CategoryEthernet},
		{"short ethernet", tcpFrame[:10], model.CategoryEthernet},
		{"truncated vlan tag", vlanCut, model.CategoryEthernet},
		{"truncated ipv4", tcpFrame[:ethHeaderLen+10], model.CategoryIPv4},
		{"ipv4 ihl below minimum", shortIHL, model.CategoryIPv4},
		{"truncated tcp", tcpFrame[:ethHeaderLen+20+10], model.CategoryTCP},
		{"tcp data offset past end", badOffset, model.CategoryTCP},
		{"truncated udp", udpFrame[:ethHeaderLen+20+4], model.CategoryUDP},
		{"truncated icmp", icmpFrame[:ethHeaderLen+20+3], model.CategoryICMP},
		{"truncated ipv6", ip6Frame[:ethHeaderLen+30], model.CategoryIPv6},
		{"truncated extension header", ipv6ExtUDP(60)[:ethHeaderLen+ipv6HeaderLen+1], model.CategoryIPv6},
	}

	c := NewClassifier(LinkEthernet)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.frame)
			if !got.Malformed {
				t.Fatalf("Expected malformed frame, got well-formed %s", got.Category)
			}
			if got.Category != tt.want {
				t.Errorf("Expected failure attributed to %s, got %s", tt.want, got.Category)
			}
		})
	}
}

func TestClassify_BogusOptionsAreNotMalformed(t *testing.T) {
	// TCP with four option bytes rewritten to kind 8, length 0.
	withOpts := tcp()
	withOpts.Options = []layers.TCPOption{
		{OptionType: layers.TCPOptionKindNop}, {OptionType: layers.TCPOptionKindNop},
		{OptionType: layers.TCPOptionKindNop}, {OptionType: layers.TCPOptionKindNop},
	}
	tcpFrame := serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolTCP), withOpts)
	tcpFrame[ethHeaderLen+ipv4MinHeaderLen+tcpMinHeaderLen] = 8
	tcpFrame[ethHeaderLen+ipv4MinHeaderLen+tcpMinHeaderLen+1] = 0

	// IPv4 with IHL 6 whose option is kind 0x44 with length 0.
	udpFrame := serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolUDP), udp(), payload(8))
	ipOpt := append([]byte(nil), udpFrame[:ethHeaderLen+ipv4MinHeaderLen]...)
	ipOpt = append(ipOpt, 0x44, 0x00, 0x00, 0x00)
	ipOpt = append(ipOpt, udpFrame[ethHeaderLen+ipv4MinHeaderLen:]...)
	ipOpt[ethHeaderLen] = 0x46
	total := binary.BigEndian.Uint16(ipOpt[ethHeaderLen+2:])
	binary.BigEndian.PutUint16(ipOpt[ethHeaderLen+2:], total+4)

	tests := []struct {
		name  string
		frame []byte
		want  model.Category
	}{
		{"tcp option with zero length", tcpFrame, model.CategoryTCP},
		{"ipv4 option with zero length", ipOpt, model.CategoryUDP},
	}
	c := NewClassifier(LinkEthernet)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.frame)
			if got != (Result{Category: tt.want}) {
				t.Errorf("Expected well-formed %s, got %+v", tt.want, got)
			}
		})
	}
}

func TestClassify_IPv4TotalLengthBelowHeader(t *testing.T) {
	frame := serialize(t, eth(layers.EthernetTypeIPv4), ip4(layers.IPProtocolUDP), udp(), payload(8))
	binary.BigEndian.PutUint16(frame[ethHeaderLen+2:], 12)
	got := NewClassifier(LinkEthernet).Classify(frame)
	if got != (Result{Category: model.CategoryIPv4, Malformed: true}) {
		t.Errorf("Expected malformed ipv4, got %+v", got)
	}
}

func TestClassify_NonFirstFragment(t *testing.T) {
	ip := ip4(layers.IPProtocolTCP)
	ip.FragOffset = 185
	frame := serialize(t, eth(layers.EthernetTypeIPv4), ip, payload(8))

	got := NewClassifier(LinkEthernet).Classify(frame)
	if got.Malformed || got.Category != model.CategoryIPOther {
		t.Errorf("Expected well-formed ip-other for a non-first fragment, got %+v", got)
	}
}

func TestClassify_LinkTypes(t *testing.T) {
	raw4 := serialize(t, ip4(layers.IPProtocolUDP), udp(), payload(8))
	raw6 := serialize(t, ip6(layers.IPProtocolTCP), tcp())

	tests := []struct {
		name  string
		link  LinkType
		frame []byte
		want  Result
	}{
		{"raw ipv4", LinkRaw, raw4, Result{Category: model.CategoryUDP}},
		{"raw ipv6", LinkRaw, raw6, Result{Category: model.CategoryTCP}},
		{"raw unknown version", LinkRaw, []byte{0x10, 0, 0, 0}, Result{Category: model.CategoryFrameOther}},
		{"raw empty", LinkRaw, nil, Result{Category: model.CategoryEthernet, Malformed: true}},
		{"ipv4 link", LinkIPv4, raw4, Result{Category: model.CategoryUDP}},
		{"ipv6 link", LinkIPv6, raw6, Result{Category: model.CategoryTCP}},
		{"other link", LinkOther, raw4, Result{Category: model.CategoryUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewClassifier(tt.link).Classify(tt.frame)
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestClassify_AlwaysInClosedSet(t *testing.T) {
	frame := serialize(t, eth(layers.EthernetTypeIPv6), ip6(layers.IPProtocolUDP), udp(), payload(64))
	c := NewClassifier(LinkEthernet)
	for n := 0; n <= len(frame); n++ {
		got := c.Classify(frame[:n])
		if !got.Category.Valid() {
			t.Fatalf("Prefix of %d bytes produced category outside the closed set: %d", n, got.Category)
		}
	}
}

func TestParseLinkType(t *testing.T) {
	for _, s := range []string{"", "ethernet", "raw", "ipv4", "ipv6"} {
		if _, err := ParseLinkType(s); err != nil {
			t.Errorf("ParseLinkType(%q) returned error: %v", s, err)
		}
	}
	if _, err := ParseLinkType("token-ring"); err == nil {
		t.Error("Expected an error for an unsupported link type")
	}
	if got := FromLayersLinkType(layers.LinkTypeEthernet); got != LinkEthernet {
		t.Errorf("Expected LinkEthernet, got %d", got)
	}
	if got := FromLayersLinkType(layers.LinkTypeLinuxSLL); got != LinkOther {
		t.Errorf("Expected LinkOther for SLL, got %d", got)
	}
}
