package index

import "github.com/prefixd/prefixd/internal/netaddr"

// trie is a binary radix trie keyed on address bits. Each inserted prefix
// terminates at depth == prefix length; a membership lookup walks at most
// BitLen levels, so query cost is bounded by the address width rather than
// the number of stored prefixes.
type trie struct {
	root *trieNode
}

type trieNode struct {
	children [2]*trieNode
	// records holds indices into the snapshot record list for prefixes
	// terminating at this node, in insertion order.
	records []int
}

func newTrie() *trie {
	return &trie{root: &trieNode{}}
}

// insert records the prefix's owning record index at depth prefix.Bits().
func (t *trie) insert(prefix netaddr.Prefix, recordIdx int) {
	node := t.root
	base := prefix.Addr()
	for depth := 0; depth < prefix.Bits(); depth++ {
		bit := base.Bit(depth)
		if node.children[bit] == nil {
			node.children[bit] = &trieNode{}
		}
		node = node.children[bit]
	}
	node.records = append(node.records, recordIdx)
}

// find returns the record indices of every stored prefix containing addr,
// shortest prefix first. The walk order is fixed for a built trie, so
// repeated lookups against one snapshot return identical sequences.
func (t *trie) find(addr netaddr.Addr) []int {
	var out []int
	node := t.root
	width := addr.BitLen()
	for depth := 0; ; depth++ {
		out = append(out, node.records...)
		if depth == width {
			break
		}
		next := node.children[addr.Bit(depth)]
		if next == nil {
			break
		}
		node = next
	}
	return out
}
