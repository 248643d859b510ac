package ai

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// datasetFile mirrors the "names" section of an Ultralytics data.yaml, which is either
// a list or a map keyed by class id.
type datasetFile struct {
	Names yaml.Node `yaml:"names"`
}

// LoadLabels reads class names from a data.yaml or a newline-separated text file.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAMLLabels(data)
	default:
		return parseTextLabels(data), nil
	}
}

func parseTextLabels(data []byte) []string {
	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	return labels
}

func parseYAMLLabels(data []byte) ([]string, error) {
	var ds datasetFile
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}

	switch ds.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := ds.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("failed to decode names list: %w", err)
		}
		return names, nil
	case yaml.MappingNode:
		var byID map[int]string
		if err := ds.Names.Decode(&byID); err != nil {
			return nil, fmt.Errorf("failed to decode names map: %w", err)
		}
		ids := make([]int, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		if len(ids) == 0 || ids[len(ids)-1] < 0 {
			return nil, nil
		}
		names := make([]string, ids[len(ids)-1]+1)
		for _, id := range ids {
			if id >= 0 {
				names[id] = byID[id]
			}
		}
		return names, nil
	case 0:
		return nil, fmt.Errorf("labels file has no names section")
	default:
		return nil, fmt.Errorf("unsupported names section")
	}
}

// labelFor maps a class id to its name, falling back to class<N>.
func labelFor(labels []string, classID int) string {
	if classID >= 0 && classID < len(labels) && labels[classID] != "" {
		return labels[classID]
	}
	return fmt.Sprintf("class%d", classID)
}
