package parser

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dgallion1/manualgest/internal/layout"
)

// TextParser handles plain text files. Blank lines separate blocks.
type TextParser struct{}

func (p *TextParser) Open(path string) (layout.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open text: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fl := newFlow()
	var current strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			fl.text(current.String())
			current.Reset()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	fl.text(current.String())

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	return fl.document(path), nil
}
