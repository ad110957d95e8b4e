package pakhash

import (
	"io"

	"github.com/stanNthe5/stringbuf"
)

// Result is the fingerprint of one qualifying entry.
type Result struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

// String renders the result as an output line, newline included.
func (r Result) String() string {
	return r.Name + " " + r.Digest + "\n"
}

type Results []Result

// Bytes renders all results as consecutive output lines.
func (rs Results) Bytes() []byte {
	sb := stringbuf.New("")
	for _, r := range rs {
		_, _ = sb.WriteString(r.Name)
		_, _ = sb.WriteString(" ")
		_, _ = sb.WriteString(r.Digest)
		_, _ = sb.WriteString("\n")
	}
	return sb.Bytes()
}

// WriteTo writes the rendered lines to w in a single write.
func (rs Results) WriteTo(w io.Writer) (int64, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	n, err := w.Write(rs.Bytes())
	return int64(n), err
}

// Names returns the entry names in order.
func (rs Results) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}
