package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// readClaimsCSV reads up to limit rows (0 = all) keyed by lower-cased header
// names. Empty cells are left out so the server treats them as absent.
// Malformed rows are skipped and counted.
func readClaimsCSV(path string, limit int) ([]domain.ClaimRecord, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	return parseClaims(file, limit)
}

func parseClaims(r io.Reader, limit int) ([]domain.ClaimRecord, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
	}

	var records []domain.ClaimRecord
	skipped := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		rec := make(domain.ClaimRecord, len(header))
		for i, col := range header {
			if i < len(row) && row[i] != "" {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)

		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, skipped, nil
}
