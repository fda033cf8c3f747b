// Package ingest parses delimited toll-rate feeds into validated records.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tollwatch/scraiper/internal/toll"
)

// Column names as they appear in the feed's header row.
const (
	colState            = "State_Or_Province"
	colFacilityLabel    = "Facility_Label"
	colTollOperator     = "Toll_Operator"
	colFacilityType     = "Facility_type"
	colRoadType         = "Road_type"
	colInterstate       = "Interstate"
	colFacilityOpenDate = "Facility_open_date"
	colRevenueLaneMiles = "Revenue_lane_Miles"
	colRevenue          = "Revenue"
	colLengthMiles      = "Length_Miles"
	colLane             = "Lane"
	colSourceType       = "Source_Type"
	colReference        = "Reference"
	colYear             = "Year"
)

// Parser reads delimited rows and maps them onto TollRate records. Field
// coercion never rejects a row: malformed values degrade to the field's
// default. Each call to Parse reads from the start of its reader, so a fresh
// reader over the same bytes yields a field-wise identical sequence.
type Parser struct {
	delimiter rune
	skipRows  int
	logger    *zap.Logger
}

// NewParser constructs a Parser. skipRows is the number of rows discarded
// after the header row before data begins (the legacy feed format carries
// one).
func NewParser(delimiter rune, skipRows int, logger *zap.Logger) *Parser {
	if delimiter == 0 {
		delimiter = '|'
	}
	if skipRows < 0 {
		skipRows = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		delimiter: delimiter,
		skipRows:  skipRows,
		logger:    logger,
	}
}

// ParseFile opens path and parses it.
func (p *Parser) ParseFile(path string) ([]toll.TollRate, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return p.Parse(f)
}

// Parse reads every data row from r. No row is dropped: every input row
// yields exactly one record.
func (p *Parser) Parse(r io.Reader) ([]toll.TollRate, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("feed has no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	for range p.skipRows {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("skip row: %w", err)
		}
	}

	var records []toll.TollRate
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		records = append(records, p.buildRecord(index, row))
	}
	return records, nil
}

func (p *Parser) buildRecord(index map[string]int, row []string) toll.TollRate {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	return toll.TollRate{
		StateOrProvince:  field(colState),
		FacilityLabel:    field(colFacilityLabel),
		TollOperator:     field(colTollOperator),
		FacilityType:     toll.ParseFacilityType(field(colFacilityType)),
		RoadType:         field(colRoadType),
		Interstate:       p.coerceBool(field(colInterstate)),
		FacilityOpenDate: field(colFacilityOpenDate),
		RevenueLaneMiles: p.coerceFloat(colRevenueLaneMiles, field(colRevenueLaneMiles)),
		Revenue:          p.coerceFloat(colRevenue, field(colRevenue)),
		LengthMiles:      p.coerceFloat(colLengthMiles, field(colLengthMiles)),
		Lane:             p.coerceFloat(colLane, field(colLane)),
		SourceType:       field(colSourceType),
		Reference:        field(colReference),
		Year:             p.coerceInt(colYear, field(colYear)),
	}
}

// coerceBool is true only for a case-insensitive "yes"; everything else,
// including empty, is false.
func (p *Parser) coerceBool(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "yes")
}

// coerceFloat strips thousands separators and defaults to 0 on failure.
func (p *Parser) coerceFloat(column, raw string) float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		p.logger.Debug("float field defaulted", zap.String("column", column), zap.String("raw", raw))
		return 0
	}
	return v
}

func (p *Parser) coerceInt(column, raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.logger.Debug("int field defaulted", zap.String("column", column), zap.String("raw", raw))
		return 0
	}
	return v
}
