package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
)

// ExportJSON writes the summary as indented JSON.
func ExportJSON(s *Summary, filename string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// ExportChecksCSV writes one row per check.
// Schema: check,passes,fails,total,pass_rate
func ExportChecksCSV(s *Summary, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"check", "passes", "fails", "total", "pass_rate"}); err != nil {
		return err
	}
	for _, c := range s.Checks {
		record := []string{
			c.Name,
			strconv.FormatInt(c.Passes, 10),
			strconv.FormatInt(c.Fails, 10),
			strconv.FormatInt(c.Passes+c.Fails, 10),
			strconv.FormatFloat(c.Rate(), 'f', 4, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Export writes prefix.json and prefix_checks.csv and returns their names.
func Export(s *Summary, prefix string) ([]string, error) {
	files := []string{prefix + ".json", prefix + "_checks.csv"}
	if err := ExportJSON(s, files[0]); err != nil {
		return nil, err
	}
	if err := ExportChecksCSV(s, files[1]); err != nil {
		return nil, err
	}
	return files, nil
}
