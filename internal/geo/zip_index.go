package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/voltbase/scooterdex-backend/internal/logger"
)

var (
	// ErrInvalidZip means the caller supplied something that is not a 5-digit
	// ZIP code at all.
	ErrInvalidZip = errors.New("invalid zip code")
	// ErrZipNotFound means the code is well-formed but not in the index.
	ErrZipNotFound = errors.New("zip code not found")
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ZipIndex is an exact-match lookup from a 5-digit ZIP code to coordinates,
// loaded once at startup and read-only afterwards.
type ZipIndex struct {
	log     *logger.Logger
	entries map[string]Coordinates
}

// NewZipIndex reads a CSV of `zip,latitude,longitude` rows. A header row is
// tolerated. Malformed rows are skipped with a warning rather than failing
// the load.
func NewZipIndex(path string, log *logger.Logger) (*ZipIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zip data: %w", err)
	}
	defer f.Close()

	idx := &ZipIndex{
		log:     log.With("component", "ZipIndex"),
		entries: make(map[string]Coordinates),
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	line := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read zip data: %w", err)
		}
		line++
		if len(rec) < 3 {
			idx.log.Warn("Skipping short zip data row", "line", line)
			continue
		}
		zip := strings.TrimSpace(rec[0])
		if line == 1 && !isFiveDigits(zip) {
			// header
			continue
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		lng, lngErr := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if !isFiveDigits(zip) || latErr != nil || lngErr != nil {
			idx.log.Warn("Skipping malformed zip data row", "line", line, "zip", zip)
			continue
		}
		idx.entries[zip] = Coordinates{Latitude: lat, Longitude: lng}
	}

	idx.log.Info("Zip index loaded", "entries", len(idx.entries))
	return idx, nil
}

func (z *ZipIndex) Lookup(zip string) (Coordinates, error) {
	zip = strings.TrimSpace(zip)
	if !isFiveDigits(zip) {
		return Coordinates{}, fmt.Errorf("%w: %q", ErrInvalidZip, zip)
	}
	coords, ok := z.entries[zip]
	if !ok {
		return Coordinates{}, fmt.Errorf("%w: %s", ErrZipNotFound, zip)
	}
	return coords, nil
}

func (z *ZipIndex) Len() int { return len(z.entries) }

func isFiveDigits(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
