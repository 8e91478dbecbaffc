package suite

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

var nodeKeys = map[string]struct{}{
	"describe": {}, "it": {}, "bench": {},
	"param": {}, "before": {}, "after": {}, "body": {}, "blocks": {},
}

type suiteFile struct {
	Package string
	Imports []string
	Helpers *sourceText
	Root    nodeYAML

	packageLine int
	importsLine int
}

// UnmarshalYAML splits the file-level keys off the top mapping; the rest is the root
// block.
func (f *suiteFile) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: document must be a mapping", value.Line)
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: value.Line, Column: value.Column}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		var err error
		switch key.Value {
		case "package":
			f.packageLine = key.Line
			err = val.Decode(&f.Package)
		case "imports":
			f.importsLine = key.Line
			err = val.Decode(&f.Imports)
		case "helpers":
			f.Helpers = new(sourceText)
			err = val.Decode(f.Helpers)
		default:
			if len(root.Content) == 0 {
				root.Line, root.Column = key.Line, key.Column
			}
			root.Content = append(root.Content, key, val)
		}
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", key.Line, key.Value, err)
		}
	}
	return root.Decode(&f.Root)
}

type nodeYAML struct {
	Describe *string     `yaml:"describe"`
	It       *string     `yaml:"it"`
	Bench    *string     `yaml:"bench"`
	Param    *string     `yaml:"param"`
	Before   *sourceText `yaml:"before"`
	After    *sourceText `yaml:"after"`
	Body     *sourceText `yaml:"body"`
	Blocks   []*nodeYAML `yaml:"blocks"`

	line   int
	column int
}

func (n *nodeYAML) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: block must be a mapping", value.Line)
	}
	for i := 0; i < len(value.Content); i += 2 {
		key := value.Content[i]
		if _, ok := nodeKeys[key.Value]; !ok {
			return fmt.Errorf("line %d: unknown key %q", key.Line, key.Value)
		}
	}
	type plain nodeYAML
	if err := value.Decode((*plain)(n)); err != nil {
		return err
	}
	n.line, n.column = value.Line, value.Column
	return nil
}

// sourceText is a Go snippet plus the suite position of its first line.
type sourceText struct {
	Value  string
	line   int
	column int
}

func (s *sourceText) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected Go source text", value.Line)
	}
	s.Value = value.Value
	s.line, s.column = value.Line, value.Column
	if value.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
		// Block scalar content starts on the line after the indicator.
		s.line++
		s.column = 1
	}
	return nil
}
