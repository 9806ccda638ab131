package catalog

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/runger/singleselect/internal/item"
)

// ReadItems decodes items from YAML (or JSON). The document is either a
// list of items or a mapping with an `items` list.
func ReadItems(r io.Reader) ([]item.Item, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: read items: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	var items []item.Item
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&items); err != nil {
			return nil, fmt.Errorf("catalog: read items: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Items []item.Item `yaml:"items"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("catalog: read items: %w", err)
		}
		items = wrapped.Items
	default:
		return nil, fmt.Errorf("catalog: read items: expected a list or a mapping with items")
	}
	return items, nil
}

// Import reads items from r and adds them, optionally replacing the
// existing contents.
func (c *Catalog) Import(ctx context.Context, r io.Reader, replace bool) (int, error) {
	items, err := ReadItems(r)
	if err != nil {
		return 0, err
	}
	if replace {
		return c.Replace(ctx, items...)
	}
	return c.Add(ctx, items...)
}
