package zipscan

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Signature is the 4-byte magic that opens every ZIP record, read big-endian
// so the constants spell "PK" followed by the record type.
type Signature uint32

const (
	SignatureLocalFile             Signature = 0x504b0304
	SignatureCentralDirectory      Signature = 0x504b0102
	SignatureEndOfCentralDirectory Signature = 0x504b0506
)

func (s Signature) String() string {
	switch s {
	case SignatureLocalFile:
		return "local-file-header"
	case SignatureCentralDirectory:
		return "central-directory"
	case SignatureEndOfCentralDirectory:
		return "end-of-central-directory"
	default:
		return fmt.Sprintf("unknown(%08x)", uint32(s))
	}
}

const (
	// HeaderSize is the fixed part of a local file header.
	HeaderSize = 30

	signatureSize = 4
)

// Compression methods
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// Header is one decoded record. For the two terminator kinds only Signature
// is set.
//
// Extra and Payload alias the buffer the header was decoded from and are only
// valid until the next call to Scanner.Feed.
type Header struct {
	Signature        Signature
	Version          uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            [4]byte
	CompressedSize   uint32
	UncompressedSize uint32
	Name             string
	Extra            []byte

	// Span is the full length of the record: fixed header, name, extra field
	// and compressed payload.
	Span int64

	// Payload holds the compressed bytes present in the buffer. Headers from
	// Decode always carry the full CompressedSize bytes; Peek may return less.
	Payload []byte
}

// IsLocal reports whether the record is a local file header.
func (h *Header) IsLocal() bool {
	return h.Signature == SignatureLocalFile
}

// IsEmpty reports whether the CRC32 field is all zero bytes, which is the
// case for directories and zero-length files.
func (h *Header) IsEmpty() bool {
	return h.CRC32 == [4]byte{}
}

// IsDir reports whether the entry name denotes a directory.
func (h *Header) IsDir() bool {
	return strings.HasSuffix(h.Name, "/")
}

// BaseName returns the entry name without its directory prefix.
func (h *Header) BaseName() string {
	if i := strings.LastIndexAny(h.Name, "\\/"); i >= 0 {
		return h.Name[i+1:]
	}
	return h.Name
}

// DataOffset is the offset of the payload relative to the record start.
func (h *Header) DataOffset() int64 {
	return h.Span - int64(h.CompressedSize)
}

// Peek decodes the record at the start of buf without requiring its payload to
// be present. ok is false when buf is too short to hold the signature, the
// fixed header or the name and extra field; the caller should retry with more
// bytes from the same start.
func Peek(buf []byte) (h *Header, ok bool, err error) {
	if len(buf) < signatureSize {
		return nil, false, nil
	}

	sig := Signature(binary.BigEndian.Uint32(buf))
	switch sig {
	case SignatureLocalFile:
	case SignatureCentralDirectory, SignatureEndOfCentralDirectory:
		return &Header{Signature: sig}, true, nil
	default:
		return nil, false, &SignatureError{Signature: [4]byte(buf[:signatureSize])}
	}

	if len(buf) < HeaderSize {
		return nil, false, nil
	}

	nameLen := int(binary.LittleEndian.Uint16(buf[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(buf[28:30]))
	nameEnd := HeaderSize + nameLen
	dataStart := nameEnd + extraLen
	if len(buf) < dataStart {
		return nil, false, nil
	}

	h = &Header{
		Signature:        sig,
		Version:          binary.LittleEndian.Uint16(buf[4:6]),
		Flags:            binary.LittleEndian.Uint16(buf[6:8]),
		Method:           binary.LittleEndian.Uint16(buf[8:10]),
		ModTime:          binary.LittleEndian.Uint16(buf[10:12]),
		ModDate:          binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:            [4]byte(buf[14:18]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[22:26]),
		Name:             string(buf[HeaderSize:nameEnd]),
		Extra:            buf[nameEnd:dataStart:dataStart],
	}
	h.Span = int64(dataStart) + int64(h.CompressedSize)

	end := int64(len(buf))
	if end > h.Span {
		end = h.Span
	}
	h.Payload = buf[dataStart:end:end]
	return h, true, nil
}

// Decode decodes exactly one record from the start of buf. A local file header
// is only returned once its whole span, payload included, is in buf; until
// then ok is false and the caller must supply more bytes from the same start.
// An unknown signature yields a *SignatureError.
func Decode(buf []byte) (h *Header, ok bool, err error) {
	h, ok, err = Peek(buf)
	if err != nil || !ok {
		return nil, ok, err
	}
	if !h.IsLocal() {
		return h, true, nil
	}
	if int64(len(buf)) < h.Span {
		return nil, false, nil
	}
	return h, true, nil
}
