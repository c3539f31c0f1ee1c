package generation_info

import (
	"regexp"
	"strings"
)

const (
	// ControlNetMarker starts the ControlNet segment of an info line. Its values
	// contain the ", " separator, so the whole segment is cut off before tokenizing.
	ControlNetMarker = "ControlNet"

	fieldSeparator     = ", "
	negativePromptLine = "Negative prompt:"
)

// Field names of interest in the info line.
const (
	FieldSteps        = "Steps"
	FieldSampler      = "Sampler"
	FieldCFGScale     = "CFG scale"
	FieldSeed         = "Seed"
	FieldSize         = "Size"
	FieldModel        = "Model"
	FieldModelHash    = "Model hash"
	FieldHiresUpscale = "Hires upscale"
)

var stepsLineRegex = regexp.MustCompile(`(?m)^Steps:.*$`)

// Info is the parsed parameter line of one batch.
type Info struct {
	Line       string
	Fields     map[string]string
	ControlNet bool
}

func (i *Info) Get(key string) (string, bool) {
	value, ok := i.Fields[key]

	return value, ok
}

// Parse extracts the first "Steps:" line of a generation log and splits it into
// key/value fields. The last occurrence of a repeated key wins.
func Parse(text string) (*Info, error) {
	line := stepsLineRegex.FindString(strings.ReplaceAll(text, "\r\n", "\n"))
	if line == "" {
		return nil, NewNotFoundError("steps line")
	}

	info := &Info{
		Fields: make(map[string]string),
	}

	if loc := strings.Index(line, ControlNetMarker); loc > 0 {
		line = line[0 : loc-len(fieldSeparator)]
		info.ControlNet = true
	}

	info.Line = line

	for _, item := range strings.Split(line, fieldSeparator) {
		if !strings.Contains(item, ":") {
			continue
		}

		parts := strings.SplitN(item, ":", 2)

		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, NewParseError(line, "field without a name: "+item)
		}

		info.Fields[key] = strings.TrimSpace(parts[1])
	}

	return info, nil
}

// SplitPrompts returns the positive and negative prompt of a full infotext block,
// i.e. everything before the "Steps:" line.
func SplitPrompts(text string) (prompt string, negativePrompt string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if loc := stepsLineRegex.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}

	var promptLines []string
	var negativeLines []string

	inNegative := false

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if strings.HasPrefix(line, negativePromptLine) {
			inNegative = true
			line = strings.TrimPrefix(line, negativePromptLine)
		}

		if inNegative {
			negativeLines = append(negativeLines, line)
		} else {
			promptLines = append(promptLines, line)
		}
	}

	return strings.TrimSpace(strings.Join(promptLines, "\n")), strings.TrimSpace(strings.Join(negativeLines, "\n"))
}
