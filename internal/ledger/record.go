package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	fieldSeparator = ","
	recordFields   = 5
)

var fieldSanitizer = strings.NewReplacer(fieldSeparator, " ", "\r", " ", "\n", " ")

// Save writes every entry, oldest first, as KIND,DATE,AMOUNT,CATEGORY,DESCRIPTION.
// Separators and line breaks inside text fields are replaced by spaces.
func (l *Ledger) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range l.entries {
		_, err := fmt.Fprintf(bw, "%s,%s,%s,%s,%s\n",
			e.Kind.Code(),
			e.Date.Format(DateLayout),
			e.Amount.String(),
			fieldSanitizer.Replace(e.CategoryOrDefault()),
			fieldSanitizer.Replace(e.Description))
		if err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush entries: %w", err)
	}
	return nil
}

// SaveFile writes the ledger to path through a temporary file so a failed
// write never truncates the previous copy.
func (l *Ledger) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := l.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}

// LoadReport describes a best-effort load. SkippedLines holds 1-based line
// numbers of records that could not be parsed.
type LoadReport struct {
	Loaded       int
	Skipped      int
	SkippedLines []int
}

// Load replaces the ledger contents with the records read from r. Records
// that do not parse are skipped and reported; only read errors fail the load,
// in which case the ledger is left unchanged.
func (l *Ledger) Load(r io.Reader) (LoadReport, error) {
	var (
		report  LoadReport
		entries []Entry
		lineNo  int
	)
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadString('\n')
		if raw != "" {
			lineNo++
			line := strings.TrimRight(raw, "\r\n")
			if strings.TrimSpace(line) != "" {
				if e, ok := parseRecord(line); ok {
					entries = append(entries, e)
				} else {
					report.Skipped++
					report.SkippedLines = append(report.SkippedLines, lineNo)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return LoadReport{}, fmt.Errorf("failed to read ledger records: %w", err)
		}
	}

	l.entries = entries
	report.Loaded = len(entries)
	return report, nil
}

func (l *Ledger) LoadFile(path string) (LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadReport{}, fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer f.Close()
	return l.Load(f)
}

func parseRecord(line string) (Entry, bool) {
	parts := strings.SplitN(line, fieldSeparator, recordFields)
	if len(parts) != recordFields {
		return Entry{}, false
	}
	kind, ok := parseKind(parts[0])
	if !ok {
		return Entry{}, false
	}
	date, err := time.Parse(DateLayout, parts[1])
	if err != nil {
		return Entry{}, false
	}
	amount, err := decimal.NewFromString(parts[2])
	if err != nil || amount.Cmp(decimal.Zero) <= 0 {
		return Entry{}, false
	}
	category := parts[3]
	if category == DefaultCategory {
		category = ""
	}
	return Entry{
		Kind:        kind,
		Amount:      amount,
		Description: parts[4],
		Date:        date,
		Category:    category,
	}, true
}
