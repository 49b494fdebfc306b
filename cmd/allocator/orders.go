package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/batch-allocation/internal/core/domain"
)

// readOrderLines parses "order_reference,sku,qty" records. A first record
// whose qty column is not a number is treated as a header.
func readOrderLines(r io.Reader) ([]domain.OrderLine, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var lines []domain.OrderLine
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read orders: %w", err)
		}

		qty, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("row %d: invalid qty %q", row, record[2])
		}

		line, err := domain.NewOrderLine(strings.TrimSpace(record[0]), strings.TrimSpace(record[1]), qty)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		lines = append(lines, line)
	}
}

// readBatches parses "reference,sku,qty,eta" records; eta is YYYY-MM-DD or
// empty for warehouse stock. A non-numeric qty on the first record marks a header.
func readBatches(r io.Reader) ([]*domain.Batch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true

	var batches []*domain.Batch
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return batches, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read batches: %w", err)
		}

		qty, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("row %d: invalid qty %q", row, record[2])
		}

		var eta *time.Time
		if raw := strings.TrimSpace(record[3]); raw != "" {
			parsed, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid eta %q", row, raw)
			}
			eta = &parsed
		}

		batch, err := domain.NewBatch(strings.TrimSpace(record[0]), strings.TrimSpace(record[1]), qty, eta)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		batches = append(batches, batch)
	}
}
