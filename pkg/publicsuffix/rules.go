package publicsuffix

import (
	"strings"
)

// node is one label of a rule, read left to right.
type node struct {
	children map[string]*node
	terminal bool
}

func (n *node) child(label string) *node {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c, ok := n.children[label]
	if !ok {
		c = &node{}
		n.children[label] = c
	}
	return c
}

// index groups rule tries by label count, so "*.kobe.jp" only ever
// matches three-label hostnames.
type index map[int]*node

func (ix index) insert(rule string) {
	labels := strings.Split(rule, ".")
	root, ok := ix[len(labels)]
	if !ok {
		root = &node{}
		ix[len(labels)] = root
	}
	n := root
	for _, label := range labels {
		n = n.child(label)
	}
	n.terminal = true
}

func (ix index) match(labels []string) bool {
	root, ok := ix[len(labels)]
	if !ok {
		return false
	}
	frontier := []*node{root}
	for _, label := range labels {
		var next []*node
		for _, n := range frontier {
			if c, ok := n.children[label]; ok {
				next = append(next, c)
			}
			if c, ok := n.children["*"]; ok {
				next = append(next, c)
			}
		}
		if len(next) == 0 {
			return false
		}
		frontier = next
	}
	for _, n := range frontier {
		if n.terminal {
			return true
		}
	}
	return false
}

// ruleSet is a parsed public suffix list.
type ruleSet struct {
	rules      index
	exceptions index
	count      int
}

// parseRules parses the publicsuffix.org list format. Blank lines and lines
// starting with "//" are skipped; "!" marks an exception rule. Only the
// first whitespace separated token of each line is used.
func parseRules(list string) *ruleSet {
	rs := &ruleSet{rules: index{}, exceptions: index{}}
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			line = line[:i]
		}
		line = strings.ToLower(line)
		if strings.HasPrefix(line, "!") {
			rs.exceptions.insert(line[1:])
		} else {
			rs.rules.insert(line)
		}
		rs.count++
	}
	return rs
}

// isPublicSuffix reports whether host exactly matches a rule and no
// exception.
func (rs *ruleSet) isPublicSuffix(host string) bool {
	host = strings.Trim(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	labels := strings.Split(host, ".")
	if !rs.rules.match(labels) {
		return false
	}
	return !rs.exceptions.match(labels)
}
