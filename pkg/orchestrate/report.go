package orchestrate

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/utils"
)

// WriteReport writes report as YAML to path, creating parent directories.
func WriteReport(path string, report *models.CrawlReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create report directory: %w", utils.ErrFilesystem, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: write report '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}
