package util

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
)

// ReadWords returns the non-empty lines of the file at path
func ReadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}

	defer f.Close()

	var (
		words   []string
		scanner = bufio.NewScanner(f)
	)

	for scanner.Scan() {
		if w := scanner.Text(); w != "" {
			words = append(words, w)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	return words, nil
}

func WriteCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}

	if err := csv.NewWriter(f).WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write csv: %w", err)
	}

	return f.Close()
}
