package compose

import (
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// set replaces the value under key, or appends the pair. Comments on an existing key are kept.
func set(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			old := m.Content[i+1]
			value.HeadComment, value.LineComment, value.FootComment = old.HeadComment, old.LineComment, old.FootComment
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, scalar(key), value)
}

// ensureMapping returns the mapping under key, creating or converting it as needed.
func ensureMapping(m *yaml.Node, key string) *yaml.Node {
	existing := lookup(m, key)
	if existing != nil && existing.Kind == yaml.MappingNode {
		return existing
	}
	fresh := mapping()
	if existing != nil && existing.Kind == yaml.SequenceNode {
		// Short form "networks: [a, b]" becomes "networks: {a: null, b: null}".
		for _, item := range existing.Content {
			fresh.Content = append(fresh.Content, scalar(item.Value), null())
		}
	}
	set(m, key, fresh)
	return fresh
}

func keys(m *yaml.Node) []string {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		out = append(out, m.Content[i].Value)
	}
	return out
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func boolean(v bool) *yaml.Node {
	s := "false"
	if v {
		s = "true"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: s}
}

func null() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: ""}
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func sequence(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, it := range items {
		n.Content = append(n.Content, scalar(it))
	}
	return n
}

func stringsOf(seq *yaml.Node) []string {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(seq.Content))
	for _, it := range seq.Content {
		out = append(out, it.Value)
	}
	return out
}

// environment reads either the mapping or the "KEY=value" list form.
func environment(n *yaml.Node) map[string]string {
	env := make(map[string]string)
	switch {
	case n == nil:
	case n.Kind == yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			env[n.Content[i].Value] = n.Content[i+1].Value
		}
	case n.Kind == yaml.SequenceNode:
		for _, it := range n.Content {
			k, v, _ := strings.Cut(it.Value, "=")
			env[k] = v
		}
	}
	return env
}

// mergeEnvironment sets entries in either form, keeping the form already in use.
func mergeEnvironment(svc *yaml.Node, entries map[string]string) {
	if len(entries) == 0 {
		return
	}
	names := make([]string, 0, len(entries))
	for k := range entries {
		names = append(names, k)
	}
	slices.Sort(names)

	existing := lookup(svc, "environment")
	if existing != nil && existing.Kind == yaml.SequenceNode {
		for _, k := range names {
			line := k + "=" + entries[k]
			idx := slices.IndexFunc(existing.Content, func(it *yaml.Node) bool {
				name, _, _ := strings.Cut(it.Value, "=")
				return name == k
			})
			if idx >= 0 {
				existing.Content[idx].Value = line
				existing.Content[idx].Tag = "!!str"
			} else {
				existing.Content = append(existing.Content, scalar(line))
			}
		}
		return
	}

	env := ensureMapping(svc, "environment")
	for _, k := range names {
		set(env, k, scalar(entries[k]))
	}
}

// imageWithTag replaces the tag of ref, keeping registry hosts with ports intact.
func imageWithTag(ref, tag string) string {
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	slash := strings.LastIndex(ref, "/")
	if colon := strings.LastIndex(ref, ":"); colon > slash {
		ref = ref[:colon]
	}
	return ref + ":" + tag
}
