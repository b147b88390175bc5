package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Notebook is the parsed cell structure of an .ipynb file.
type Notebook struct {
	Cells []Cell
}

// Cell is one notebook cell with its recorded outputs flattened to text.
type Cell struct {
	Index   int
	Type    string // "code" or "markdown"
	Source  string
	Outputs []string
}

// rawNotebook mirrors the nbformat v4 JSON layout. Source fields may be a
// single string or a list of line strings depending on the producer.
type rawNotebook struct {
	Cells []rawCell `json:"cells"`
}

type rawCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
	Outputs  []rawOutput     `json:"outputs"`
}

type rawOutput struct {
	OutputType string                     `json:"output_type"`
	Text       json.RawMessage            `json:"text"`
	Data       map[string]json.RawMessage `json:"data"`
	Ename      string                     `json:"ename"`
	Evalue     string                     `json:"evalue"`
}

// ParseNotebook decodes nbformat JSON into a Notebook.
func ParseNotebook(data []byte) (*Notebook, error) {
	var raw rawNotebook
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("notebook json: %w", err)
	}

	nb := &Notebook{}
	for i, rc := range raw.Cells {
		cell := Cell{
			Index:  i,
			Type:   rc.CellType,
			Source: decodeMultiline(rc.Source),
		}
		for _, out := range rc.Outputs {
			if text := decodeOutput(out); text != "" {
				cell.Outputs = append(cell.Outputs, text)
			}
		}
		nb.Cells = append(nb.Cells, cell)
	}
	return nb, nil
}

// decodeMultiline handles the string-or-list-of-strings encoding.
func decodeMultiline(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	return ""
}

// decodeOutput flattens one recorded output to plain text.
func decodeOutput(out rawOutput) string {
	switch out.OutputType {
	case "stream":
		return decodeMultiline(out.Text)
	case "execute_result", "display_data":
		if plain, ok := out.Data["text/plain"]; ok {
			return decodeMultiline(plain)
		}
	case "error":
		return strings.TrimSpace(out.Ename + ": " + out.Evalue)
	}
	return ""
}
