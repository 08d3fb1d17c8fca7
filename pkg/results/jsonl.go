package results

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteJSONL writes output records to a JSONL file (one JSON object per
// line). The format suits streaming processing and CI pipelines.
func WriteJSONL(outputPath string, records []OutputRecord) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return nil
}

// WriteReportJSON writes the final report as one pretty-printed JSON
// document.
func WriteReportJSON(outputPath string, report Report) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
