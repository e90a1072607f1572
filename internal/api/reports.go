package api

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var errReportMissing = errors.New("report not generated")

func readReport(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errReportMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return data, nil
}
