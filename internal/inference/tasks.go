package inference

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Task is one entry of the inference config.
type Task struct {
	Name       string `yaml:"-"`
	VideoPath  string `yaml:"video_path"`
	AudioPath  string `yaml:"audio_path"`
	BBoxShift  *int   `yaml:"bbox_shift"`  // nil uses the command-line default
	ResultName string `yaml:"result_name"` // Output base name, derived from the inputs when empty
}

// LoadTasks reads the task file. Tasks are returned sorted by name.
func LoadTasks(path string) ([]Task, error) {
	//nolint:gosec // G304: task file is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference config: %w", err)
	}
	var byName map[string]Task
	if err := yaml.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("failed to parse inference config %s: %w", path, err)
	}
	if len(byName) == 0 {
		return nil, fmt.Errorf("inference config %s lists no tasks", path)
	}

	tasks := make([]Task, 0, len(byName))
	for name, t := range byName {
		t.Name = name
		if t.VideoPath == "" || t.AudioPath == "" {
			return nil, fmt.Errorf("task %s: video_path and audio_path are required", name)
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}
