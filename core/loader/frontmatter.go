package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontMatter is the raw YAML block at the top of a track's metadata file.
// Loosely-typed on purpose; validation into the Track model happens after
// decoding.
type frontMatter struct {
	Title    string   `yaml:"title"`
	Year     int      `yaml:"year"`
	Category string   `yaml:"category"`
	Status   string   `yaml:"status"`
	Tags     []string `yaml:"tags"`
	Created  string   `yaml:"created"`
	Modified string   `yaml:"modified"`
}

// splitFrontMatter separates the `---` fenced YAML header from the markdown
// body. The file must start with a fence; a missing or unterminated fence is
// an error so a half-written metadata file never slips through as an empty
// record. Only a line that is exactly `---` closes the header, so header
// lines that merely begin with dashes stay part of the YAML.
func splitFrontMatter(content string) (header, body string, err error) {
	const fence = "---"

	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, fence+"\n") {
		return "", "", fmt.Errorf("metadata file does not start with a front matter fence")
	}

	lines := strings.Split(normalized, "\n")
	closing := -1
	for i := 1; i < len(lines); i++ {
		if lines[i] == fence {
			closing = i
			break
		}
	}
	if closing < 0 {
		return "", "", fmt.Errorf("front matter fence is not closed")
	}

	header = strings.Join(lines[1:closing], "\n")
	body = strings.Join(lines[closing+1:], "\n")
	return header, strings.TrimSpace(body), nil
}

// parseFrontMatter decodes the YAML header into the raw front-matter record.
func parseFrontMatter(header string) (*frontMatter, error) {
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("malformed front matter: %w", err)
	}
	return &fm, nil
}
