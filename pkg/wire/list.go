package wire

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/sirrobot01/pakscan/internal/utils"
)

// Target is one container from a list.
type Target struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// ParseList reads a container list. Each line is "<name> <url>", split at the
// whitespace right before the url, so names may contain spaces. A line holding
// only a url takes its name from the last path segment. Blank lines and lines
// starting with '#' are ignored.
func ParseList(r io.Reader) ([]Target, error) {
	var targets []Target
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, url, ok := splitLine(line)
		if !ok {
			return nil, fmt.Errorf("line %d: no url in %q", lineNo, line)
		}
		targets = append(targets, Target{Index: len(targets), Name: name, URL: url})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading list: %w", err)
	}
	return targets, nil
}

func splitLine(line string) (name, url string, ok bool) {
	if strings.HasPrefix(line, "http") {
		return cmp.Or(utils.BaseURLName(line), line), line, true
	}
	for i := 1; i < len(line); i++ {
		if unicode.IsSpace(rune(line[i-1])) && strings.HasPrefix(line[i:], "http") {
			name = strings.TrimSpace(line[:i])
			url = strings.TrimSpace(line[i:])
			return name, url, true
		}
	}
	return "", "", false
}
