package blueprint

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	weavererrors "github.com/alexisbeaulieu97/weaver/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseBlueprint loads a blueprint tree from disk, validates it, and returns
// the resulting model.
func ParseBlueprint(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, weavererrors.NewParseError(path, 0, err)
	}

	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, weavererrors.NewParseError(path, extractLine(err), err)
	}
	bp.setFile(path)

	if err := ValidateBlueprint(&bp); err != nil {
		return nil, err
	}

	return &bp, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
