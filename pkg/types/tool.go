package types

import (
	"encoding/json"
	"fmt"
)

// Tool is the drawing tool carried by every drawing event.
type Tool int

const (
	ToolPen Tool = iota
	ToolEraser
	ToolLine
	ToolCircle
	ToolRectangle
)

var toolNames = [...]string{
	ToolPen:       "pen",
	ToolEraser:    "eraser",
	ToolLine:      "line",
	ToolCircle:    "circle",
	ToolRectangle: "rectangle",
}

// ParseTool maps a wire name to a Tool.
func ParseTool(name string) (Tool, error) {
	for i, n := range toolNames {
		if n == name {
			return Tool(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown tool %q", ErrInvalidDrawing, name)
}

func (t Tool) String() string {
	if t < 0 || int(t) >= len(toolNames) {
		return fmt.Sprintf("tool(%d)", int(t))
	}
	return toolNames[t]
}

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	return t >= 0 && int(t) < len(toolNames)
}

// IsShape reports whether the tool renders from an anchor point rather than a path.
func (t Tool) IsShape() bool {
	switch t {
	case ToolLine, ToolCircle, ToolRectangle:
		return true
	default:
		return false
	}
}

func (t Tool) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown tool %d", ErrInvalidDrawing, int(t))
	}
	return json.Marshal(t.String())
}

func (t *Tool) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("%w: tool must be a string", ErrInvalidDrawing)
	}
	parsed, err := ParseTool(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
