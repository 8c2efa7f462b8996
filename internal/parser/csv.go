package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/datalog-plotter/backend/internal/models"
	"golang.org/x/text/encoding/charmap"
)

// utf8BOM as it reads after Windows-1252 decoding.
const decodedBOM = "ï»¿"

// DatalogCSVParser handles delimited datalog exports from tuning tools.
// Format: header "Time (sec),<channel>,...,<info>" followed by numeric rows.
// The last header cell is a free-text info string, not a channel, and its
// data column is discarded.
type DatalogCSVParser struct {
	delimiter rune
}

func NewDatalogCSVParser(delimiter rune) *DatalogCSVParser {
	return &DatalogCSVParser{delimiter: delimiter}
}

func (p *DatalogCSVParser) Name() string {
	switch p.delimiter {
	case ',':
		return "datalog_csv"
	case ';':
		return "datalog_semicolon"
	case '\t':
		return "datalog_tab"
	default:
		return fmt.Sprintf("datalog_%q", p.delimiter)
	}
}

// CanParse sniffs the header line for a Time (sec) cell split by this
// parser's delimiter.
func (p *DatalogCSVParser) CanParse(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, &IOError{Path: filePath, Err: err}
	}
	defer file.Close()

	scanner := bufio.NewScanner(charmap.Windows1252.NewDecoder().Reader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), decodedBOM))
		if line == "" {
			continue
		}
		cells := strings.Split(line, string(p.delimiter))
		if len(cells) < 2 {
			return false, nil
		}
		for _, c := range cells {
			if strings.Trim(strings.TrimSpace(c), `"`) == models.TimeChannel {
				return true, nil
			}
		}
		return false, nil
	}
	if err := scanner.Err(); err != nil {
		return false, &IOError{Path: filePath, Err: err}
	}
	return false, nil
}

func (p *DatalogCSVParser) Parse(filePath string) (*models.Datalog, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &IOError{Path: filePath, Err: err}
	}
	defer file.Close()

	log, err := p.ParseReader(file)
	var ioErr *IOError
	if errors.As(err, &ioErr) && ioErr.Path == "" {
		ioErr.Path = filePath
	}
	return log, err
}

func (p *DatalogCSVParser) ParseReader(r io.Reader) (*models.Datalog, error) {
	reader := csv.NewReader(charmap.Windows1252.NewDecoder().Reader(r))
	reader.Comma = p.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &FormatError{Line: 1, Reason: "missing header row"}
	}
	if err != nil {
		return nil, readError(err)
	}
	if len(header) < 2 {
		return nil, &FormatError{Line: 1, Reason: fmt.Sprintf("header has %d column(s), need a channel and an info column", len(header))}
	}

	n := len(header) - 1
	channels := make([]string, n)
	for i := 0; i < n; i++ {
		channels[i] = strings.TrimSpace(header[i])
	}
	channels[0] = strings.TrimPrefix(channels[0], decodedBOM)
	info := strings.TrimSpace(header[n])

	values := make([][]float64, n)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, readError(err)
		}
		line, _ := reader.FieldPos(0)

		if isBlankRecord(record) {
			continue
		}
		if len(record) < n {
			return nil, &FormatError{Line: line, Reason: fmt.Sprintf("row has %d column(s), header declares %d channel(s)", len(record), n)}
		}
		for c := 0; c < n; c++ {
			v, err := parseReading(record[c])
			if err != nil {
				return nil, &FormatError{Line: line, Column: channels[c], Reason: fmt.Sprintf("non-numeric reading %q", record[c])}
			}
			values[c] = append(values[c], v)
		}
	}

	return models.NewDatalog(channels, values, info), nil
}

// parseReading converts one cell. Empty cells become NaN.
func parseReading(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func readError(err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &FormatError{Line: csvErr.Line, Reason: csvErr.Err.Error()}
	}
	return &IOError{Err: err}
}
