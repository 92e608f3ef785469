package simulator

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

const testIMEI = "356307042441013"

func TestCRC16IBM_KnownPacket(t *testing.T) {
	// data field of the Codec 8 example packet from the Teltonika protocol docs
	data, err := hex.DecodeString("08010000016B40D8EA30010000000000000000000000000000000105021503010101425E0F01F10000601A014E000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, uint16(0xC7CF), crc16IBM(data))
}

func TestLoginPacket(t *testing.T) {
	packet, err := loginPacket(testIMEI)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x0F}, packet[:2])
	assert.Equal(t, testIMEI, string(packet[2:]))

	_, err = loginPacket("1234")
	assert.Error(t, err)
	_, err = loginPacket("35630704244101X")
	assert.Error(t, err)
}

func TestAVLPacket_Layout(t *testing.T) {
	ts := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	packet := avlPacket(Position{
		Time:       ts,
		Coordinate: types.Coordinate{Lat: 12.9716, Lng: 77.5946},
		Angle:      90,
		Speed:      42,
		Satellites: 7,
	})

	require.Len(t, packet, 8+33+4)
	assert.Equal(t, []byte{0, 0, 0, 0}, packet[:4])
	assert.Equal(t, uint32(33), binary.BigEndian.Uint32(packet[4:8]))
	assert.Equal(t, byte(codec8), packet[8])
	assert.Equal(t, byte(1), packet[9])
	assert.Equal(t, uint64(ts.UnixMilli()), binary.BigEndian.Uint64(packet[10:18]))
	assert.Equal(t, int32(775946000), int32(binary.BigEndian.Uint32(packet[19:23])))
	assert.Equal(t, int32(129716000), int32(binary.BigEndian.Uint32(packet[23:27])))
	assert.Equal(t, uint16(90), binary.BigEndian.Uint16(packet[29:31]))
	assert.Equal(t, byte(7), packet[31])
	assert.Equal(t, uint16(42), binary.BigEndian.Uint16(packet[32:34]))
	assert.Equal(t, byte(1), packet[len(packet)-5])

	crc := binary.BigEndian.Uint32(packet[len(packet)-4:])
	assert.Equal(t, uint32(crc16IBM(packet[8:len(packet)-4])), crc)
}

func TestAVLPacket_NegativeCoordinates(t *testing.T) {
	packet := avlPacket(Position{Coordinate: types.Coordinate{Lat: -33.8688, Lng: -70.6693}})
	assert.Equal(t, int32(-706693000), int32(binary.BigEndian.Uint32(packet[19:23])))
	assert.Equal(t, int32(-338688000), int32(binary.BigEndian.Uint32(packet[23:27])))
}

// fakeServer accepts the login, then acks every AVL packet with ackCount.
func fakeServer(t *testing.T, conn net.Conn, loginReply byte, ackCount uint32, packets chan<- []byte) {
	t.Helper()
	go func() {
		login := make([]byte, 17)
		if _, err := io.ReadFull(conn, login); err != nil {
			return
		}
		if _, err := conn.Write([]byte{loginReply}); err != nil {
			return
		}
		for {
			packet := make([]byte, 45)
			if _, err := io.ReadFull(conn, packet); err != nil {
				return
			}
			packets <- packet
			ack := make([]byte, 4)
			binary.BigEndian.PutUint32(ack, ackCount)
			if _, err := conn.Write(ack); err != nil {
				return
			}
		}
	}()
}

func TestEmitter_LoginAndSend(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	packets := make(chan []byte, 1)
	fakeServer(t, server, loginAccept, 1, packets)

	e, err := NewEmitter(client, testIMEI)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Send(Position{Time: time.Now(), Coordinate: types.Coordinate{Lat: 1, Lng: 2}}))

	packet := <-packets
	assert.Equal(t, int32(20000000), int32(binary.BigEndian.Uint32(packet[19:23])))
}

func TestEmitter_LoginRejected(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	defer client.Close()

	fakeServer(t, server, 0x00, 1, make(chan []byte, 1))

	_, err := NewEmitter(client, testIMEI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login rejected")
}

func TestEmitter_UnexpectedAck(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	fakeServer(t, server, loginAccept, 0, make(chan []byte, 1))

	e, err := NewEmitter(client, testIMEI)
	require.NoError(t, err)
	defer e.Close()

	err = e.Send(Position{Time: time.Now()})
	assert.Error(t, err)
}

func TestDial_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = Dial(t.Context(), addr, testIMEI)
	assert.Error(t, err)
}
