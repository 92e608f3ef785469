package simulator

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

const (
	codec8       = 0x08
	loginAccept  = 0x01
	ackTimeout   = 5 * time.Second
	avlRecordLen = 8 + 1 + 15 + 6 // timestamp, priority, GPS element, empty IO element
)

// Position is one AVL record
type Position struct {
	Time       time.Time
	Coordinate types.Coordinate
	Angle      uint16 // degrees from north
	Speed      uint16 // km/h
	Satellites uint8
}

// Emitter forwards vehicle positions to a Teltonika Codec 8 server
type Emitter struct {
	mu   sync.Mutex
	conn net.Conn
	imei string
}

// Dial connects to address and logs in with imei.
func Dial(ctx context.Context, address, imei string) (*Emitter, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("TCP connection failed: %w", err)
	}
	e, err := NewEmitter(conn, imei)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return e, nil
}

// NewEmitter performs the login handshake on an open connection.
func NewEmitter(conn net.Conn, imei string) (*Emitter, error) {
	login, err := loginPacket(imei)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(login); err != nil {
		return nil, fmt.Errorf("login packet send failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(ackTimeout))
	defer conn.SetReadDeadline(time.Time{})

	ack := make([]byte, 1)
	if _, err := io.ReadFull(conn, ack); err != nil {
		return nil, fmt.Errorf("login ack: %w", err)
	}
	if ack[0] != loginAccept {
		return nil, fmt.Errorf("login rejected for IMEI %s", imei)
	}
	return &Emitter{conn: conn, imei: imei}, nil
}

// Send writes one AVL packet and waits for the server to acknowledge it.
func (e *Emitter) Send(p Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.conn.Write(avlPacket(p)); err != nil {
		return fmt.Errorf("position packet send failed: %w", err)
	}

	e.conn.SetReadDeadline(time.Now().Add(ackTimeout))
	defer e.conn.SetReadDeadline(time.Time{})

	ack := make([]byte, 4)
	if _, err := io.ReadFull(e.conn, ack); err != nil {
		return fmt.Errorf("position ack: %w", err)
	}
	if n := binary.BigEndian.Uint32(ack); n != 1 {
		return fmt.Errorf("server accepted %d records, sent 1", n)
	}
	return nil
}

func (e *Emitter) Close() error {
	return e.conn.Close()
}

// loginPacket is 0x000F followed by the 15 ASCII IMEI digits
func loginPacket(imei string) ([]byte, error) {
	if len(imei) != 15 {
		return nil, fmt.Errorf("IMEI must be 15 digits")
	}
	for _, r := range imei {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("IMEI must be 15 digits")
		}
	}

	packet := make([]byte, 2+15)
	binary.BigEndian.PutUint16(packet, 15)
	copy(packet[2:], imei)
	return packet, nil
}

// avlPacket encodes a single-record Codec 8 packet:
// preamble | data length | codec | n | record | n | crc
func avlPacket(p Position) []byte {
	dataLen := 1 + 1 + avlRecordLen + 1
	packet := make([]byte, 8+dataLen+4)

	binary.BigEndian.PutUint32(packet[4:8], uint32(dataLen))
	data := packet[8 : 8+dataLen]

	data[0] = codec8
	data[1] = 1

	rec := data[2 : 2+avlRecordLen]
	binary.BigEndian.PutUint64(rec[0:8], uint64(p.Time.UnixMilli()))
	rec[8] = 0 // priority low
	binary.BigEndian.PutUint32(rec[9:13], uint32(int32(math.Round(p.Coordinate.Lng*1e7))))
	binary.BigEndian.PutUint32(rec[13:17], uint32(int32(math.Round(p.Coordinate.Lat*1e7))))
	// altitude rec[17:19] stays 0
	binary.BigEndian.PutUint16(rec[19:21], p.Angle)
	rec[21] = p.Satellites
	binary.BigEndian.PutUint16(rec[22:24], p.Speed)
	// IO element rec[24:30]: event id and all counts zero

	data[len(data)-1] = 1

	binary.BigEndian.PutUint32(packet[len(packet)-4:], uint32(crc16IBM(data)))
	return packet
}

// CRC-16/IBM, reflected polynomial 0xA001, initial value 0
func crc16IBM(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
