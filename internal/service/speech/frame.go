package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎双向流式协议：4 字节头 + 可选 sequence/event 元数据 + payload。
//
//	byte0: version(4) | header size in words(4)
//	byte1: message type(4) | flags(4)
//	byte2: serialization(4) | compression(4)
//	byte3: reserved

const frameVersion = 0b0001

type frameType uint8

const (
	frameFullClientRequest  frameType = 0b0001
	frameFullServerResponse frameType = 0b1001
	frameAudioOnlyResponse  frameType = 0b1011
	frameError              frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence       frameFlags = 0b0000
	flagPositiveSequence frameFlags = 0b0001
	flagLastNoSequence   frameFlags = 0b0010
	flagNegativeSequence frameFlags = 0b0011
	flagWithEvent        frameFlags = 0b0100

	sequenceMask frameFlags = 0b0011
)

const (
	serializationNone uint8 = 0b0000
	serializationJSON uint8 = 0b0001

	compressionNone uint8 = 0b0000
	compressionGzip uint8 = 0b0001
)

type frameEvent int32

const (
	eventStartConnection    frameEvent = 1
	eventFinishConnection   frameEvent = 2
	eventConnectionStarted  frameEvent = 50
	eventConnectionFailed   frameEvent = 51
	eventConnectionFinished frameEvent = 52
	eventSessionStarted     frameEvent = 150
	eventSessionFinished    frameEvent = 152
	eventSessionFailed      frameEvent = 153
)

var errShortFrame = errors.New("frame truncated")

// frame 一个协议帧，只保留合成流程用到的字段。
type frame struct {
	Type          frameType
	Flags         frameFlags
	Serialization uint8
	Compression   uint8

	Sequence  int32
	Event     frameEvent
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *frame) hasSequence() bool {
	s := f.Flags & sequenceMask
	return s == flagPositiveSequence || s == flagNegativeSequence
}

func (f *frame) hasEvent() bool {
	return f.Flags&flagWithEvent != 0
}

// isLast 服务端用 last/negative sequence 标志标记最后一包。
func (f *frame) isLast() bool {
	s := f.Flags & sequenceMask
	return s == flagLastNoSequence || s == flagNegativeSequence
}

// body 返回解压后的 payload。
func (f *frame) body() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		return gunzip(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method %d", f.Compression)
	}
}

func newClientRequest(payload []byte) *frame {
	return &frame{
		Type:          frameFullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializationJSON,
		Compression:   compressionNone,
		Payload:       payload,
	}
}

func (f *frame) marshal() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		frameVersion<<4 | 0b0001,
		uint8(f.Type)<<4 | uint8(f.Flags),
		f.Serialization<<4 | f.Compression,
		0x00,
	})

	putUint32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	putString := func(s string) {
		putUint32(uint32(len(s)))
		buf.WriteString(s)
	}

	if f.hasSequence() {
		putUint32(uint32(f.Sequence))
	}
	if f.hasEvent() {
		putUint32(uint32(f.Event))
		if !f.Event.connectionScoped() {
			putString(f.SessionID)
		}
		if f.Event.carriesConnectID() {
			putString(f.ConnectID)
		}
	}
	if f.Type == frameError {
		putUint32(f.ErrorCode)
	}
	putUint32(uint32(len(f.Payload)))
	buf.Write(f.Payload)
	return buf.Bytes()
}

// parseFrame 解析一个完整的二进制 websocket 消息。
func parseFrame(data []byte) (*frame, error) {
	r := frameReader{data: data}

	head, err := r.take(4)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version := head[0] >> 4; version != frameVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", version)
	}

	f := &frame{
		Type:          frameType(head[1] >> 4),
		Flags:         frameFlags(head[1] & 0x0F),
		Serialization: head[2] >> 4,
		Compression:   head[2] & 0x0F,
	}

	// header size 以 4 字节为单位，超出部分为扩展头，直接跳过
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.take(extra); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	if f.hasSequence() {
		v, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
		f.Sequence = int32(v)
	}

	if f.hasEvent() {
		v, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		f.Event = frameEvent(int32(v))

		if !f.Event.connectionScoped() {
			if f.SessionID, err = r.string(); err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
		}
		if f.Event.carriesConnectID() {
			if f.ConnectID, err = r.string(); err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
		}
	}

	if f.Type == frameError {
		if f.ErrorCode, err = r.uint32(); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	size, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("read payload size: %w", err)
	}
	if f.Payload, err = r.take(int(size)); err != nil {
		return nil, fmt.Errorf("read payload (%d bytes): %w", size, err)
	}
	return f, nil
}

func (e frameEvent) connectionScoped() bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

func (e frameEvent) carriesConnectID() bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

type frameReader struct {
	data []byte
	off  int
}

func (r *frameReader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, errShortFrame
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *frameReader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *frameReader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}
