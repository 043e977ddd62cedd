package service

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/closeflow/pkg/utils"
)

//go:embed batch_manifest.schema.json
var manifestSchemaJSON []byte

var manifestSchema = utils.MustCompileSchema("batch_manifest.schema.json", manifestSchemaJSON)

type batchManifest struct {
	Defaults struct {
		Entity string `yaml:"entity"`
		Period string `yaml:"period"`
	} `yaml:"defaults"`
	Jobs []BatchJob `yaml:"jobs"`
}

// LoadBatchManifest reads a YAML job list. Relative file paths resolve against the
// manifest's directory.
func LoadBatchManifest(path string) ([]BatchJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseBatchManifest(data, filepath.Dir(path))
}

// ParseBatchManifest decodes manifest content, filling entity and period from defaults
func ParseBatchManifest(data []byte, baseDir string) ([]BatchJob, error) {
	if err := manifestSchema.ValidateYAML(data); err != nil {
		return nil, err
	}

	var m batchManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	jobs := make([]BatchJob, 0, len(m.Jobs))
	for i, job := range m.Jobs {
		if job.Entity == "" {
			job.Entity = m.Defaults.Entity
		}
		if job.Period == "" {
			job.Period = m.Defaults.Period
		}
		if job.Entity == "" || job.Period == "" {
			return nil, fmt.Errorf("%w: manifest job %d (%s) has no entity or period", ErrInvalidRequest, i, job.Path)
		}
		if baseDir != "" && !filepath.IsAbs(job.Path) {
			job.Path = filepath.Join(baseDir, job.Path)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
