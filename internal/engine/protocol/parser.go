package protocol

import (
	"Go2NetGuard/internal/model"
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LinkType selects the first header a Classifier expects.
type LinkType uint8

const (
	LinkEthernet LinkType = iota
	LinkRaw               // IPv4 or IPv6, chosen by the version nibble
	LinkIPv4
	LinkIPv6
	LinkOther
)

// ParseLinkType maps a config value to a LinkType. Empty means Ethernet.
func ParseLinkType(s string) (LinkType, error) {
	switch s {
	case "", "ethernet":
		return LinkEthernet, nil
	case "raw":
		return LinkRaw, nil
	case "ipv4":
		return LinkIPv4, nil
	case "ipv6":
		return LinkIPv6, nil
	default:
		return LinkOther, fmt.Errorf("unsupported link type: %q", s)
	}
}

// FromLayersLinkType converts a capture handle's link type.
func FromLayersLinkType(lt layers.LinkType) LinkType {
	switch lt {
	case layers.LinkTypeEthernet:
		return LinkEthernet
	case layers.LinkTypeRaw:
		return LinkRaw
	case layers.LinkTypeIPv4:
		return LinkIPv4
	case layers.LinkTypeIPv6:
		return LinkIPv6
	default:
		return LinkOther
	}
}

// Fixed header sizes checked before a layer is decoded.
const (
	ethHeaderLen     = 14
	vlanTagLen       = 4
	ipv4MinHeaderLen = 20
	ipv6HeaderLen    = 40
	icmpv4HeaderLen  = 8
	icmpv6HeaderLen  = 4
	tcpMinHeaderLen  = 20
	udpHeaderLen     = 8
	ipv6FragLen      = 8
)

// Bounds on the header chain walk.
const (
	MaxVLANDepth      = 2
	MaxIPv6ExtHeaders = 6
)

const ipProtocolMobility layers.IPProtocol = 135

// Result is the outcome of classifying one frame.
type Result struct {
	Category model.Category
	// Malformed is set when a header was truncated or invalid. Category then
	// names the layer that failed.
	Malformed bool
}

func ok(c model.Category) Result  { return Result{Category: c} }
func bad(c model.Category) Result { return Result{Category: c, Malformed: true} }

// Classifier walks a frame's header chain and returns the deepest recognised
// category. It reuses its layer structs between calls, so each lane needs its
// own Classifier.
type Classifier struct {
	link  LinkType
	eth   layers.Ethernet
	vlan  layers.Dot1Q
	ip6   layers.IPv6
	icmp4 layers.ICMPv4
	icmp6 layers.ICMPv6
	udp   layers.UDP
}

// NewClassifier creates a classifier for frames of the given link type.
func NewClassifier(link LinkType) *Classifier {
	return &Classifier{link: link}
}

// Classify returns the frame's category and whether parsing failed.
func (c *Classifier) Classify(frame []byte) Result {
	switch c.link {
	case LinkEthernet:
		return c.ethernet(frame)
	case LinkRaw:
		if len(frame) == 0 {
			return bad(model.CategoryEthernet)
		}
		switch frame[0] >> 4 {
		case 4:
			return c.ipv4(frame)
		case 6:
			return c.ipv6(frame)
		default:
			return ok(model.CategoryFrameOther)
		}
	case LinkIPv4:
		return c.ipv4(frame)
	case LinkIPv6:
		return c.ipv6(frame)
	default:
		return ok(model.CategoryUnknown)
	}
}

func (c *Classifier) ethernet(data []byte) Result {
	if len(data) < ethHeaderLen {
		return bad(model.CategoryEthernet)
	}
	if err := c.eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return bad(model.CategoryEthernet)
	}

	etype := c.eth.EthernetType
	payload := c.eth.Payload
	for i := 0; i < MaxVLANDepth; i++ {
		if etype != layers.EthernetTypeDot1Q && etype != layers.EthernetTypeQinQ {
			break
		}
		if len(payload) < vlanTagLen {
			return bad(model.CategoryEthernet)
		}
		if err := c.vlan.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return bad(model.CategoryEthernet)
		}
		etype = c.vlan.Type
		payload = c.vlan.Payload
	}

	switch etype {
	case layers.EthernetTypeIPv4:
		return c.ipv4(payload)
	case layers.EthernetTypeIPv6:
		return c.ipv6(payload)
	default:
		return ok(model.CategoryFrameOther)
	}
}

// ipv4 checks only the fixed header, IHL and total length. Options are not
// interpreted, so a bogus option never fails an otherwise complete header.
func (c *Classifier) ipv4(data []byte) Result {
	if len(data) < ipv4MinHeaderLen {
		return bad(model.CategoryIPv4)
	}
	ihl := int(data[0]&0x0f) * 4
	if data[0]>>4 != 4 || ihl < ipv4MinHeaderLen || ihl > len(data) {
		return bad(model.CategoryIPv4)
	}
	total := int(binary.BigEndian.Uint16(data[2:4]))
	if total == 0 {
		// Segmentation offload leaves the length unset.
		total = len(data)
	}
	if total < ihl {
		return bad(model.CategoryIPv4)
	}
	// Only the first fragment carries the transport header.
	if binary.BigEndian.Uint16(data[6:8])&0x1fff != 0 {
		return ok(model.CategoryIPOther)
	}

	payload := data[ihl:min(total, len(data))]
	switch layers.IPProtocol(data[9]) {
	case layers.IPProtocolICMPv4:
		return c.icmpv4(payload)
	case layers.IPProtocolTCP:
		return c.transportTCP(payload)
	case layers.IPProtocolUDP:
		return c.transportUDP(payload)
	default:
		return ok(model.CategoryIPOther)
	}
}

func (c *Classifier) ipv6(data []byte) Result {
	if len(data) < ipv6HeaderLen {
		return bad(model.CategoryIPv6)
	}
	if err := c.ip6.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return bad(model.CategoryIPv6)
	}

	// Walk extension headers on the raw payload; the decoded layer may already
	// have consumed a hop-by-hop header.
	next := c.ip6.NextHeader
	payload := data[ipv6HeaderLen:]
	if l := int(c.ip6.Length); l > 0 && l < len(payload) {
		payload = payload[:l]
	}

walk:
	for i := 0; i < MaxIPv6ExtHeaders; i++ {
		var hdrLen int
		switch next {
		case layers.IPProtocolIPv6HopByHop, layers.IPProtocolIPv6Routing,
			layers.IPProtocolIPv6Destination, ipProtocolMobility:
			if len(payload) < 2 {
				return bad(model.CategoryIPv6)
			}
			hdrLen = (int(payload[1]) + 1) * 8
		case layers.IPProtocolAH:
			if len(payload) < 2 {
				return bad(model.CategoryIPv6)
			}
			hdrLen = (int(payload[1]) + 2) * 4
		case layers.IPProtocolIPv6Fragment:
			if len(payload) < ipv6FragLen {
				return bad(model.CategoryIPv6)
			}
			if binary.BigEndian.Uint16(payload[2:4])>>3 != 0 {
				return ok(model.CategoryIPOther)
			}
			hdrLen = ipv6FragLen
		default:
			break walk
		}
		if len(payload) < hdrLen {
			return bad(model.CategoryIPv6)
		}
		next = layers.IPProtocol(payload[0])
		payload = payload[hdrLen:]
	}

	switch next {
	case layers.IPProtocolICMPv6:
		return c.icmpv6(payload)
	case layers.IPProtocolTCP:
		return c.transportTCP(payload)
	case layers.IPProtocolUDP:
		return c.transportUDP(payload)
	default:
		return ok(model.CategoryIPOther)
	}
}

func (c *Classifier) icmpv4(data []byte) Result {
	if len(data) < icmpv4HeaderLen {
		return bad(model.CategoryICMP)
	}
	if err := c.icmp4.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return bad(model.CategoryICMP)
	}
	return ok(model.CategoryICMP)
}

func (c *Classifier) icmpv6(data []byte) Result {
	if len(data) < icmpv6HeaderLen {
		return bad(model.CategoryICMP)
	}
	if err := c.icmp6.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return bad(model.CategoryICMP)
	}
	return ok(model.CategoryICMP)
}

// transportTCP checks the fixed header and the data offset; options are
// left alone.
func (c *Classifier) transportTCP(data []byte) Result {
	if len(data) < tcpMinHeaderLen {
		return bad(model.CategoryTCP)
	}
	off := int(data[12]>>4) * 4
	if off < tcpMinHeaderLen || off > len(data) {
		return bad(model.CategoryTCP)
	}
	return ok(model.CategoryTCP)
}

func (c *Classifier) transportUDP(data []byte) Result {
	if len(data) < udpHeaderLen {
		return bad(model.CategoryUDP)
	}
	if err := c.udp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return bad(model.CategoryUDP)
	}
	return ok(model.CategoryUDP)
}
