// Package accounts turns an indentation-based chart-of-accounts text into a
// tree of entity.AccountNode and answers search and lookup queries over it.
// Everything here is pure: trees are never mutated after Parse returns.
package accounts

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// IndentUnit is the number of whitespace columns per hierarchy level
const IndentUnit = 5

const bullet = "•"

var codePattern = regexp.MustCompile(`\[\s*(\d+)\s*\]`)

// IndentLevel returns the hierarchy depth signalled by the leading whitespace of line.
// A tab counts as one full level.
func IndentLevel(line string) int {
	columns := 0
	for _, r := range line {
		if r == '\t' {
			columns += IndentUnit
			continue
		}
		if !unicode.IsSpace(r) {
			break
		}
		columns++
	}
	return columns / IndentUnit
}

// ParseLine splits a ledger line into its account code and label.
// Malformed brackets are left in the label untouched.
func ParseLine(line string) (code, label string) {
	clean := strings.TrimSpace(strings.ReplaceAll(line, bullet, ""))

	if len(clean) >= 2 && strings.HasPrefix(clean, `"`) && strings.HasSuffix(clean, `"`) {
		return "", strings.TrimSpace(clean[1 : len(clean)-1])
	}

	loc := codePattern.FindStringSubmatchIndex(clean)
	if loc == nil {
		return "", clean
	}

	code = clean[loc[2]:loc[3]]
	label = strings.TrimSpace(clean[:loc[0]] + clean[loc[1]:])
	return code, label
}

// Parse builds the account tree for a ledger text. It never fails: blank lines are
// skipped and inconsistent indentation degrades to the closest valid structure.
//
// A node only receives children when the next non-blank line is indented deeper
// than the node's own line. Its children are the following lines indented deeper
// than that line, all placed one level down, so equally indented lines stay
// siblings even when they are over-indented.
func Parse(text string) []*entity.AccountNode {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	p := &parser{lines: strings.Split(text, "\n")}
	return p.parseLevel(0, -1)
}

type parser struct {
	lines []string
	pos   int
}

// parseLevel collects the nodes at level until a line is not indented deeper
// than parentIndent
func (p *parser) parseLevel(level, parentIndent int) []*entity.AccountNode {
	nodes := make([]*entity.AccountNode, 0)

	for p.pos < len(p.lines) {
		line := strings.TrimRightFunc(p.lines[p.pos], unicode.IsSpace)
		if isBlank(line) {
			p.pos++
			continue
		}

		indent := IndentLevel(line)
		if indent <= parentIndent {
			break
		}

		node := newNode(line, level, p.pos)
		p.pos++

		if next, ok := p.peek(); ok && IndentLevel(next) > indent {
			node.Children = p.parseLevel(level+1, indent)
		}

		nodes = append(nodes, node)
	}

	return nodes
}

// peek returns the next non-blank line without consuming anything
func (p *parser) peek() (string, bool) {
	for i := p.pos; i < len(p.lines); i++ {
		line := strings.TrimRightFunc(p.lines[i], unicode.IsSpace)
		if !isBlank(line) {
			return line, true
		}
	}
	return "", false
}

func newNode(line string, level, index int) *entity.AccountNode {
	code, label := ParseLine(line)

	id := code
	if id == "" {
		id = fmt.Sprintf("%s-%d-%d", label, level, index)
	}

	return &entity.AccountNode{
		ID:    id,
		Label: label,
		Code:  code,
		Level: level,
	}
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
