package mock

import (
	"bytes"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	apperrors "github.com/kbukum/gormock/errors"
)

// ReadRows parses a mock data file. The document is a mapping from table
// name to a list of row mappings, in JSON or YAML:
//
//	{"human": [{"name": "John"}], "pet": [{"name": "Milo", "species": "DOG"}]}
//
// Tables and columns keep their document order.
func ReadRows(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.InvalidInput("path", err.Error()).WithCause(err).WithDetail("path", path)
	}
	rows, err := ParseRows(data)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			appErr.WithDetail("path", path)
		}
		return nil, err
	}
	return rows, nil
}

// ParseRows parses a mock data document; see ReadRows.
func ParseRows(data []byte) ([]Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.InvalidFormat("document", "JSON or YAML").WithCause(err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, apperrors.InvalidFormat("document", "mapping of table name to rows").
			WithDetail("line", root.Line)
	}

	var rows []Row
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, rowsNode := root.Content[i], root.Content[i+1]
		table := keyNode.Value

		if rowsNode.Kind == yaml.ScalarNode && rowsNode.Tag == "!!null" {
			continue
		}
		if rowsNode.Kind != yaml.SequenceNode {
			return nil, apperrors.InvalidFormat(table, "list of rows").WithDetail("line", rowsNode.Line)
		}
		for _, rowNode := range rowsNode.Content {
			row, err := parseRow(table, rowNode)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func parseRow(table string, node *yaml.Node) (Row, error) {
	if node.Kind != yaml.MappingNode {
		return Row{}, apperrors.InvalidFormat(table, "row mapping of column to value").WithDetail("line", node.Line)
	}
	row := Row{Table: table, Columns: make([]Column, 0, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, valueNode := node.Content[i].Value, node.Content[i+1]
		if valueNode.Kind != yaml.ScalarNode {
			return Row{}, apperrors.InvalidFormat(fmt.Sprintf("%s.%s", table, name), "scalar value").
				WithDetail("line", valueNode.Line)
		}
		var value any
		if err := valueNode.Decode(&value); err != nil {
			return Row{}, apperrors.InvalidFormat(fmt.Sprintf("%s.%s", table, name), "scalar value").WithCause(err)
		}
		row.Columns = append(row.Columns, Column{Name: name, Value: value})
	}
	return row, nil
}
