package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/train-reservation/internal/model"
)

// seedFile is the on-disk shape of a catalog seed.
type seedFile struct {
	Trains []seedTrain `yaml:"trains"`
}

type seedTrain struct {
	ID             int64  `yaml:"id"`
	Name           string `yaml:"name"`
	Source         string `yaml:"source"`
	Destination    string `yaml:"destination"`
	Departure      string `yaml:"departure"`
	Arrival        string `yaml:"arrival"`
	TotalSeats     int    `yaml:"total_seats"`
	AvailableSeats *int   `yaml:"available_seats"`
	Fare           string `yaml:"fare"`
}

// LoadFile reads a YAML catalog seed from path.
func LoadFile(path string) ([]model.Train, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Load(bytes.NewReader(data))
}

// Load decodes a YAML catalog seed.  Trains without an explicit id are
// numbered after the largest id seen so far, in file order.  Available
// seats default to the total.
func Load(r io.Reader) ([]model.Train, error) {
	var seed seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	trains := make([]model.Train, 0, len(seed.Trains))
	seen := make(map[int64]bool, len(seed.Trains))
	var next int64 = 1
	for i, st := range seed.Trains {
		t, err := st.toTrain()
		if err != nil {
			return nil, fmt.Errorf("catalog: entry %d: %w", i+1, err)
		}
		if t.ID == 0 {
			for seen[next] {
				next++
			}
			t.ID = next
		}
		if t.ID < 0 || seen[t.ID] {
			return nil, fmt.Errorf("catalog: entry %d: invalid or duplicate id %d", i+1, t.ID)
		}
		seen[t.ID] = true
		if t.ID >= next {
			next = t.ID + 1
		}
		trains = append(trains, t)
	}
	return trains, nil
}

func (st seedTrain) toTrain() (model.Train, error) {
	t := model.Train{
		ID:          st.ID,
		Name:        strings.TrimSpace(st.Name),
		Source:      strings.TrimSpace(st.Source),
		Destination: strings.TrimSpace(st.Destination),
		Departure:   strings.TrimSpace(st.Departure),
		Arrival:     strings.TrimSpace(st.Arrival),
		TotalSeats:  st.TotalSeats,
	}
	if t.Name == "" || t.Source == "" || t.Destination == "" {
		return t, fmt.Errorf("name, source and destination are required")
	}
	for _, hm := range []string{t.Departure, t.Arrival} {
		if _, err := time.Parse("15:04", hm); err != nil {
			return t, fmt.Errorf("train %q: time %q is not HH:MM", t.Name, hm)
		}
	}
	if t.TotalSeats <= 0 {
		return t, fmt.Errorf("train %q: total_seats must be positive", t.Name)
	}
	t.AvailableSeats = t.TotalSeats
	if st.AvailableSeats != nil {
		t.AvailableSeats = *st.AvailableSeats
	}
	if t.AvailableSeats < 0 || t.AvailableSeats > t.TotalSeats {
		return t, fmt.Errorf("train %q: available_seats outside [0, %d]", t.Name, t.TotalSeats)
	}
	fare, err := decimal.NewFromString(strings.TrimSpace(st.Fare))
	if err != nil {
		return t, fmt.Errorf("train %q: fare %q: %w", t.Name, st.Fare, err)
	}
	if fare.IsNegative() {
		return t, fmt.Errorf("train %q: fare must not be negative", t.Name)
	}
	t.Fare = fare
	return t, nil
}
