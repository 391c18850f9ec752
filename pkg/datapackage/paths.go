package datapackage

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Paths holds the data locations of a resource. In descriptors it is either a single string or a
// list of strings whose contents are concatenated.
type Paths []string

func (p *Paths) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = Paths{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("path must be a string or a list of strings: %w", err)
	}
	*p = many
	return nil
}

func (p *Paths) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = Paths{node.Value}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*p = many
		return nil
	}
	return fmt.Errorf("line %d: path must be a string or a list of strings", node.Line)
}

func (p Paths) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(p[0])
	}
	return json.Marshal([]string(p))
}
