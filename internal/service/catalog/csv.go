package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kirinyoku/tix-saga/internal/domain"
)

// ReadTheatres parses "id,name,location" rows. The first row is a header.
func ReadTheatres(r io.Reader) ([]domain.Theatre, error) {
	const op = "service.catalog.ReadTheatres"

	rows, err := readRows(r, 3)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.Theatre, 0, len(rows))
	for i, row := range rows {
		id, err := parseInt(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: id: %w", op, i+2, err)
		}
		out = append(out, domain.Theatre{
			ID:       id,
			Name:     strings.TrimSpace(row[1]),
			Location: strings.TrimSpace(row[2]),
		})
	}

	return out, nil
}

// ReadShows parses "id,theatre_id,title,price,seats_available" rows. The
// first row is a header.
func ReadShows(r io.Reader) ([]domain.Show, error) {
	const op = "service.catalog.ReadShows"

	rows, err := readRows(r, 5)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.Show, 0, len(rows))
	for i, row := range rows {
		line := i + 2

		id, err := parseInt(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: id: %w", op, line, err)
		}
		theatreID, err := parseInt(row[1])
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: theatre_id: %w", op, line, err)
		}
		price, err := parseInt(row[3])
		if err != nil || price < 0 {
			return nil, fmt.Errorf("%s: line %d: price: %w", op, line, ErrMalformedCSV)
		}
		seats, err := parseInt(row[4])
		if err != nil || seats < 0 {
			return nil, fmt.Errorf("%s: line %d: seats_available: %w", op, line, ErrMalformedCSV)
		}

		out = append(out, domain.Show{
			ID:             id,
			TheatreID:      theatreID,
			Title:          strings.TrimSpace(row[2]),
			Price:          price,
			SeatsAvailable: int(seats),
		})
	}

	return out, nil
}

// LoadFiles reads both catalog files. An empty path yields an empty list.
func LoadFiles(theatresPath, showsPath string) ([]domain.Theatre, []domain.Show, error) {
	const op = "service.catalog.LoadFiles"

	var (
		theatres []domain.Theatre
		shows    []domain.Show
	)

	if theatresPath != "" {
		f, err := os.Open(theatresPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		defer f.Close()

		if theatres, err = ReadTheatres(f); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if showsPath != "" {
		f, err := os.Open(showsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		defer f.Close()

		if shows, err = ReadShows(f); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return theatres, shows, nil
}

func readRows(r io.Reader, fields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fields
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedCSV, err)
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err)
	}

	return rows, nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedCSV, s)
	}
	return n, nil
}
