package modules

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ethFrame(etherType uint16, payload []byte) []byte {
	b := make([]byte, 0, etherHdrLen+len(payload))
	b = append(b, 0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x02)
	b = append(b, 0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01)
	b = binary.BigEndian.AppendUint16(b, etherType)
	return append(b, payload...)
}

func ipv4Packet(proto uint8, src, dst [4]byte, payload []byte) []byte {
	totLen := ipv4HdrLen + len(payload)
	b := make([]byte, 0, totLen)
	b = append(b, 0x45, 0x00)
	b = binary.BigEndian.AppendUint16(b, uint16(totLen))
	b = append(b, 0x00, 0x00, 0x00, 0x00)
	b = append(b, 64, proto)
	b = append(b, 0x00, 0x00)
	b = append(b, src[:]...)
	b = append(b, dst[:]...)
	return append(b, payload...)
}

func TestEthernetRouting(t *testing.T) {
	h := newTCPHarness(t)
	ts := time.Unix(1700000000, 0)

	h.feed(ethFrame(etherTypeIPv4, ipv4Packet(ipProtoUDP, clientIP, serverIP, nil)), ts)
	require.NotNil(t, h.param("ethernet.type"))
	u, _ := h.param("ethernet.type").Uint()
	assert.Equal(t, uint64(etherTypeIPv4), u)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01},
		h.param("ethernet.src_addr").Bytes())

	// Unknown EtherType parses the frame header and stops.
	h.feed(ethFrame(0x9999, []byte{1, 2, 3}), ts)
	assert.NotNil(t, h.param("ethernet.type"))
	assert.Nil(t, h.param("ipv4.proto"))
}

func TestARPDecode(t *testing.T) {
	h := newTCPHarness(t)

	arpBody := []byte{
		0x00, 0x01, // hardware type: ethernet
		0x08, 0x00, // protocol type: ipv4
		6, 4, // lengths
		0x00, 0x01, // op: request
	}
	arpBody = append(arpBody, 0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01) // src hw
	arpBody = append(arpBody, 192, 168, 0, 10)                    // src pr
	arpBody = append(arpBody, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00) // dst hw
	arpBody = append(arpBody, 192, 168, 0, 1)                     // dst pr

	h.feed(ethFrame(etherTypeARP, arpBody), time.Unix(1700000000, 0))

	u, _ := h.param("arp.op").Uint()
	assert.Equal(t, uint64(1), u)
	assert.Equal(t, []byte{192, 168, 0, 10}, h.param("arp.src_pr").Bytes())
	assert.Equal(t, []byte{192, 168, 0, 1}, h.param("arp.dst_pr").Bytes())
}

func TestIPv4SetsAddressing(t *testing.T) {
	h := newTCPHarness(t)

	udpBody := make([]byte, 0, udpHdrLen+3)
	udpBody = binary.BigEndian.AppendUint16(udpBody, 5353)
	udpBody = binary.BigEndian.AppendUint16(udpBody, 53)
	udpBody = binary.BigEndian.AppendUint16(udpBody, uint16(udpHdrLen+3))
	udpBody = append(udpBody, 0x00, 0x00)
	udpBody = append(udpBody, 'd', 'n', 's')

	h.feed(ethFrame(etherTypeIPv4, ipv4Packet(ipProtoUDP, clientIP, serverIP, udpBody)),
		time.Unix(1700000000, 0))

	assert.Equal(t, clientIP[:], h.prop.SrcAddr())
	assert.Equal(t, serverIP[:], h.prop.DstAddr())
	assert.Equal(t, uint16(5353), h.prop.SrcPort())
	assert.Equal(t, uint16(53), h.prop.DstPort())
	assert.Equal(t, []byte("dns"), h.param("udp.data").Bytes())
	u, _ := h.param("ipv4.proto").Uint()
	assert.Equal(t, uint64(ipProtoUDP), u)
}

func TestIPv4Truncation(t *testing.T) {
	h := newTCPHarness(t)

	// Two trailer bytes beyond total_len must not reach the UDP data.
	udpBody := make([]byte, 0, udpHdrLen+2)
	udpBody = binary.BigEndian.AppendUint16(udpBody, 1000)
	udpBody = binary.BigEndian.AppendUint16(udpBody, 2000)
	udpBody = binary.BigEndian.AppendUint16(udpBody, uint16(udpHdrLen+2))
	udpBody = append(udpBody, 0x00, 0x00)
	udpBody = append(udpBody, 'o', 'k')

	pkt := ipv4Packet(ipProtoUDP, clientIP, serverIP, udpBody)
	withTrailer := append(append([]byte{}, pkt...), 0xff, 0xff)

	h.feed(ethFrame(etherTypeIPv4, withTrailer), time.Unix(1700000000, 0))
	assert.Equal(t, []byte("ok"), h.param("udp.data").Bytes())
}

func TestICMPDecode(t *testing.T) {
	h := newTCPHarness(t)

	icmpBody := []byte{8, 0, 0x12, 0x34, 'p', 'i', 'n', 'g'}
	h.feed(ethFrame(etherTypeIPv4, ipv4Packet(ipProtoICMP, clientIP, serverIP, icmpBody)),
		time.Unix(1700000000, 0))

	u, _ := h.param("icmp.type").Uint()
	assert.Equal(t, uint64(8), u)
	assert.Equal(t, []byte("ping"), h.param("icmp.data").Bytes())
}

func TestShortIPv4Header(t *testing.T) {
	h := newTCPHarness(t)

	events := h.feed(ethFrame(etherTypeIPv4, []byte{0x45, 0x00, 0x00}), time.Unix(1700000000, 0))
	assert.Empty(t, events)
	assert.Nil(t, h.param("ipv4.proto"))
}
