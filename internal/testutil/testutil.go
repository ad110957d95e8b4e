package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// Record describes one local file record. Payload is written verbatim after
// the header, so it must already be compressed for Method.
type Record struct {
	Name    string
	Method  uint16
	CRC32   uint32
	Size    uint32 // uncompressed size
	Payload []byte
	Extra   []byte
}

// Deflated returns a record holding data compressed with raw deflate.
func Deflated(name string, data []byte) Record {
	return Record{
		Name:    name,
		Method:  8,
		CRC32:   crc32.ChecksumIEEE(data),
		Size:    uint32(len(data)),
		Payload: Deflate(data),
	}
}

// Stored returns a record holding data uncompressed.
func Stored(name string, data []byte) Record {
	return Record{
		Name:    name,
		CRC32:   crc32.ChecksumIEEE(data),
		Size:    uint32(len(data)),
		Payload: append([]byte(nil), data...),
	}
}

// Dir returns a directory record, which carries no payload and a zero CRC32.
func Dir(name string) Record {
	return Record{Name: name}
}

// Bytes encodes the record as a ZIP local file header followed by its payload.
func (r Record) Bytes() []byte {
	var buf bytes.Buffer
	hdr := make([]byte, 30)
	copy(hdr, "PK\x03\x04")
	binary.LittleEndian.PutUint16(hdr[4:], 20)
	binary.LittleEndian.PutUint16(hdr[8:], r.Method)
	binary.LittleEndian.PutUint16(hdr[10:], 0x6000)
	binary.LittleEndian.PutUint16(hdr[12:], 0x5a21)
	binary.LittleEndian.PutUint32(hdr[14:], r.CRC32)
	binary.LittleEndian.PutUint32(hdr[18:], uint32(len(r.Payload)))
	binary.LittleEndian.PutUint32(hdr[22:], r.Size)
	binary.LittleEndian.PutUint16(hdr[26:], uint16(len(r.Name)))
	binary.LittleEndian.PutUint16(hdr[28:], uint16(len(r.Extra)))
	buf.Write(hdr)
	buf.WriteString(r.Name)
	buf.Write(r.Extra)
	buf.Write(r.Payload)
	return buf.Bytes()
}

// CentralDirectory returns a central directory record. Its body is zeroed
// since scanners stop at the signature.
func CentralDirectory() []byte {
	b := make([]byte, 46)
	copy(b, "PK\x01\x02")
	return b
}

// EndOfCentralDirectory returns an empty end of central directory record.
func EndOfCentralDirectory() []byte {
	b := make([]byte, 22)
	copy(b, "PK\x05\x06")
	return b
}

// Container concatenates the records and closes them with a central
// directory marker.
func Container(records ...Record) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		buf.Write(r.Bytes())
	}
	buf.Write(CentralDirectory())
	buf.Write(EndOfCentralDirectory())
	return buf.Bytes()
}

// Deflate compresses data with raw deflate, no zlib or gzip framing.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Split cuts data into consecutive chunks of the given sizes, cycling through
// sizes until data is exhausted.
func Split(data []byte, sizes ...int) [][]byte {
	if len(sizes) == 0 {
		return [][]byte{data}
	}
	var chunks [][]byte
	for i := 0; len(data) > 0; i++ {
		n := min(sizes[i%len(sizes)], len(data))
		if n <= 0 {
			n = 1
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// ChunkReader returns reads of the sizes Split would produce.
type ChunkReader struct {
	chunks [][]byte
}

func NewChunkReader(data []byte, sizes ...int) *ChunkReader {
	return &ChunkReader{chunks: Split(data, sizes...)}
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}
