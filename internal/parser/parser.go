package parser

import (
	"io"

	"github.com/datalog-plotter/backend/internal/models"
)

// Parser defines the interface for datalog parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// Parse loads the entire file.
	Parse(filePath string) (*models.Datalog, error)
	// ParseReader loads a datalog from an already opened stream.
	ParseReader(r io.Reader) (*models.Datalog, error)
}

// Load reads a comma-separated Windows-1252 datalog and returns it together
// with the free-text info string carried in the header's last column.
func Load(filePath string) (*models.Datalog, string, error) {
	log, err := NewDatalogCSVParser(',').Parse(filePath)
	if err != nil {
		return nil, "", err
	}
	return log, log.Info, nil
}
