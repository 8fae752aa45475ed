package accounts

import (
	"strings"

	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// Search prunes the tree to the branches containing a node whose label or code
// contains term, case-insensitively. A header is kept with only its matching
// branches; a matching header none of whose descendants match keeps its whole
// subtree. Kept headers are copies, so the input tree stays intact.
func Search(tree []*entity.AccountNode, term string) []*entity.AccountNode {
	if term == "" {
		return tree
	}
	return filter(tree, strings.ToLower(term))
}

func filter(nodes []*entity.AccountNode, needle string) []*entity.AccountNode {
	out := make([]*entity.AccountNode, 0)

	for _, node := range nodes {
		if !node.HasChildren() {
			if matches(node, needle) {
				out = append(out, node)
			}
			continue
		}

		if children := filter(node.Children, needle); len(children) > 0 {
			header := *node
			header.Children = children
			out = append(out, &header)
		} else if matches(node, needle) {
			out = append(out, node)
		}
	}

	return out
}

func matches(node *entity.AccountNode, needle string) bool {
	return strings.Contains(strings.ToLower(node.Label), needle) ||
		(node.Code != "" && strings.Contains(strings.ToLower(node.Code), needle))
}

// Resolve finds the first node, depth-first, whose code or id equals value
func Resolve(tree []*entity.AccountNode, value string) (*entity.AccountNode, bool) {
	if value == "" {
		return nil, false
	}

	for _, node := range tree {
		if node.Code == value || node.ID == value {
			return node, true
		}
		if found, ok := Resolve(node.Children, value); ok {
			return found, true
		}
	}

	return nil, false
}

// Flatten lists every node in pre-order
func Flatten(tree []*entity.AccountNode) []*entity.AccountNode {
	var out []*entity.AccountNode
	var walk func(nodes []*entity.AccountNode)
	walk = func(nodes []*entity.AccountNode) {
		for _, node := range nodes {
			out = append(out, node)
			walk(node.Children)
		}
	}
	walk(tree)
	return out
}
