package pakhash

import (
	"bytes"
	"errors"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/sirrobot01/pakscan/internal/testutil"
	"github.com/sirrobot01/pakscan/pkg/zipscan"
)

const (
	sha1ABC        = "a9993e364706816aba3e25717850c26c9cd0d89d"
	sha1HelloWorld = "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"
	sha256ABC      = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
)

// corrupt is not a valid raw deflate stream: the first block uses the
// reserved block type.
var corrupt = []byte{0xff, 0xff, 0xff, 0xff}

func decodeRecords(t *testing.T, records ...testutil.Record) []*zipscan.Header {
	t.Helper()
	var headers []*zipscan.Header
	for _, r := range records {
		h, ok, err := zipscan.Decode(r.Bytes())
		if err != nil || !ok {
			t.Fatalf("Failed to decode fixture %s: ok=%v err=%v", r.Name, ok, err)
		}
		headers = append(headers, h)
	}
	return headers
}

func rawRecord(name string, payload []byte) testutil.Record {
	return testutil.Record{Name: name, Method: zipscan.MethodDeflate, CRC32: 0xdeadbeef, Size: 3, Payload: payload}
}

func TestHash_KnownPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"stored block", []byte{0x01, 0x03, 0x00, 0xfc, 0xff, 'a', 'b', 'c'}, sha1ABC},
		{"fixed huffman", []byte{0x4b, 0x4c, 0x4a, 0x06, 0x00}, sha1ABC},
		{"compressed at test time", testutil.Deflate([]byte("hello world")), sha1HelloWorld},
	}
	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := decodeRecords(t, rawRecord("map1.pk3", tt.payload))
			res, err := p.Hash(headers[0])
			if err != nil {
				t.Fatalf("Hash failed: %v", err)
			}
			if res.Digest != tt.want {
				t.Errorf("Expected digest %s, got %s", tt.want, res.Digest)
			}
			if res.String() != "map1.pk3 "+tt.want+"\n" {
				t.Errorf("Unexpected result line %q", res.String())
			}
		})
	}
}

func TestHash_Algorithms(t *testing.T) {
	headers := decodeRecords(t, rawRecord("map1.pk3", []byte{0x4b, 0x4c, 0x4a, 0x06, 0x00}))

	res, err := New(WithAlgorithm(SHA256)).Hash(headers[0])
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if res.Digest != sha256ABC {
		t.Errorf("Expected sha256 %s, got %s", sha256ABC, res.Digest)
	}

	seen := map[string]Algorithm{}
	for _, a := range Algorithms() {
		res, err := New(WithAlgorithm(a)).Hash(headers[0])
		if err != nil {
			t.Fatalf("%s: Hash failed: %v", a, err)
		}
		if want := a.New().Size() * 2; len(res.Digest) != want {
			t.Errorf("%s: expected %d hex chars, got %d", a, want, len(res.Digest))
		}
		if strings.ToLower(res.Digest) != res.Digest {
			t.Errorf("%s: digest must be lowercase hex", a)
		}
		if other, dup := seen[res.Digest]; dup {
			t.Errorf("%s and %s produced the same digest", a, other)
		}
		seen[res.Digest] = a
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := map[string]Algorithm{
		"":            SHA1,
		"sha1":        SHA1,
		"SHA256":      SHA256,
		" blake3 ":    BLAKE3,
		"sha3-256":    SHA3_256,
		"blake2b-256": BLAKE2b256,
	}
	for in, want := range tests {
		got, err := ParseAlgorithm(in)
		if err != nil {
			t.Errorf("ParseAlgorithm(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseAlgorithm(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseAlgorithm("md5"); err == nil {
		t.Error("Expected an error for an unknown algorithm")
	}
}

func TestProcess_SkipsEmptyEntriesBeforeDecompression(t *testing.T) {
	// a zero CRC32 with a payload that would fail to inflate proves the
	// entry never reached decompression
	empty := testutil.Record{Name: "broken.pk3", Method: zipscan.MethodDeflate, Payload: corrupt}
	results, errs := New().Process(decodeRecords(t, empty, testutil.Dir("maps/")))
	if len(results) != 0 || len(errs) != 0 {
		t.Errorf("Expected empty entries to be skipped silently, got %d results and %v", len(results), errs)
	}
}

func TestProcess_SkipsOtherSuffixesBeforeDecompression(t *testing.T) {
	headers := decodeRecords(t,
		rawRecord("readme.txt", corrupt),
		rawRecord("map1.PK3", corrupt),
		rawRecord("map1.pk3.bak", corrupt),
	)
	results, errs := New().Process(headers)
	if len(results) != 0 || len(errs) != 0 {
		t.Errorf("Expected non matching entries to be skipped silently, got %d results and %v", len(results), errs)
	}
}

func TestProcess_DecompressionFailureIsPerEntry(t *testing.T) {
	headers := decodeRecords(t,
		testutil.Deflated("first.pk3", []byte("abc")),
		rawRecord("broken.pk3", corrupt),
		testutil.Deflated("last.pk3", []byte("hello world")),
	)
	results, errs := New().Process(headers)

	if got := strings.Join(results.Names(), ","); got != "first.pk3,last.pk3" {
		t.Errorf("Expected results for first.pk3 and last.pk3, got %s", got)
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 entry error, got %d", len(errs))
	}
	var entryErr *EntryError
	if !errors.As(errs[0], &entryErr) || entryErr.Name != "broken.pk3" {
		t.Errorf("Expected EntryError for broken.pk3, got %v", errs[0])
	}
	if !errors.Is(errs[0], ErrDecompress) {
		t.Errorf("Expected ErrDecompress, got %v", errs[0])
	}
}

func TestProcess_TruncatedPayloadFails(t *testing.T) {
	payload := testutil.Deflate(bytes.Repeat([]byte("lightmap"), 200))
	headers := decodeRecords(t, rawRecord("short.pk3", payload[:len(payload)/2]))
	_, errs := New().Process(headers)
	if len(errs) != 1 || !errors.Is(errs[0], ErrDecompress) {
		t.Errorf("Expected a decompression error for a truncated stream, got %v", errs)
	}
}

func TestProcess_UnsupportedMethod(t *testing.T) {
	headers := decodeRecords(t, testutil.Stored("stored.pk3", []byte("abc")))
	results, errs := New().Process(headers)
	if len(results) != 0 {
		t.Errorf("Stored entry must not produce a result")
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrUnsupportedMethod) {
		t.Fatalf("Expected ErrUnsupportedMethod, got %v", errs)
	}
	var entryErr *EntryError
	if errors.As(errs[0], &entryErr) && entryErr.Method != zipscan.MethodStore {
		t.Errorf("Expected method %d in error, got %d", zipscan.MethodStore, entryErr.Method)
	}
}

func TestProcess_StripsDirectoryPrefix(t *testing.T) {
	headers := decodeRecords(t,
		testutil.Deflated("baseq3/maps/ztn.pk3", []byte("abc")),
		testutil.Deflated(`win\style\dm6.pk3`, []byte("abc")),
	)
	results, _ := New().Process(headers)
	if got := strings.Join(results.Names(), ","); got != "ztn.pk3,dm6.pk3" {
		t.Errorf("Expected bare names, got %s", got)
	}
}

func TestProcess_CustomSuffix(t *testing.T) {
	headers := decodeRecords(t,
		testutil.Deflated("map1.pk3", []byte("abc")),
		testutil.Deflated("pak0.pk4", []byte("abc")),
	)
	results, _ := New(WithSuffix(".pk4")).Process(headers)
	if got := strings.Join(results.Names(), ","); got != "pak0.pk4" {
		t.Errorf("Expected only pak0.pk4, got %s", got)
	}
}

func TestResults_Bytes(t *testing.T) {
	rs := Results{{Name: "a.pk3", Digest: "01"}, {Name: "b.pk3", Digest: "02"}}
	if got := string(rs.Bytes()); got != "a.pk3 01\nb.pk3 02\n" {
		t.Errorf("Unexpected rendering %q", got)
	}
	var buf bytes.Buffer
	n, err := rs.WriteTo(&buf)
	if err != nil || n != int64(buf.Len()) || buf.String() != "a.pk3 01\nb.pk3 02\n" {
		t.Errorf("WriteTo wrote %q (%d, %v)", buf.String(), n, err)
	}
}

// Mirrors the reference scenario: a pk3 with known contents and a directory
// entry, closed by an end of central directory record, arriving in three
// unevenly sized chunks.
func TestScannerAndPipeline_EndToEnd(t *testing.T) {
	plain := []byte("hello world")
	var data []byte
	data = append(data, testutil.Record{
		Name:    "map1.pk3",
		Method:  zipscan.MethodDeflate,
		CRC32:   crc32.ChecksumIEEE(plain),
		Size:    uint32(len(plain)),
		Payload: testutil.Deflate(plain),
	}.Bytes()...)
	data = append(data, testutil.Dir("maps/").Bytes()...)
	data = append(data, testutil.EndOfCentralDirectory()...)

	chunks := [][]byte{data[:7], data[7:45], data[45:]}

	s := zipscan.NewScanner()
	p := New()
	var results Results
	var errs []error
	for _, chunk := range chunks {
		headers, err := s.Feed(chunk)
		if err != nil {
			t.Fatalf("Feed failed: %v", err)
		}
		res, perr := p.Process(headers)
		results = append(results, res...)
		errs = append(errs, perr...)
	}

	if !s.Done() || s.Err() != nil {
		t.Errorf("Expected clean termination, state=%s err=%v", s.State(), s.Err())
	}
	if len(errs) != 0 {
		t.Errorf("Unexpected entry errors: %v", errs)
	}
	if got := string(results.Bytes()); got != "map1.pk3 "+sha1HelloWorld+"\n" {
		t.Errorf("Unexpected output %q", got)
	}
}
