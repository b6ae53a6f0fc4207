package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EtherTypeTest is the IEEE local experimental ethertype, used for
// probe frames so they never collide with real protocol traffic.
const EtherTypeTest = 0x88B5

var ErrFrameTooShort = errors.New("frame too short")

// Frame is a decoded Ethernet II frame.
type Frame struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType uint16
	Payload   []byte
}

// BuildFrame serializes an Ethernet II frame around payload. The
// payload length is preserved exactly; no minimum-size padding is
// applied.
func BuildFrame(dst, src net.HardwareAddr, etherType uint16, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		DstMAC:       dst,
		SrcMAC:       src,
		EthernetType: layers.EthernetType(etherType),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseFrame decodes the Ethernet header of a raw frame and returns
// the header fields plus a copy of the payload.
func ParseFrame(raw []byte) (*Frame, error) {
	pkt := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.Default)
	layer := pkt.Layer(layers.LayerTypeEthernet)
	if layer == nil {
		return nil, ErrFrameTooShort
	}
	eth := layer.(*layers.Ethernet)
	return &Frame{
		Dst:       eth.DstMAC,
		Src:       eth.SrcMAC,
		EtherType: uint16(eth.EthernetType),
		Payload:   append([]byte(nil), eth.Payload...),
	}, nil
}
