package study

import (
	"time"

	"github.com/google/uuid"
)

// Record is one persisted objective evaluation.
type Record struct {
	ID          string             `json:"id"`
	Sample      string             `json:"sample"`
	Iteration   int                `json:"iteration"`
	Coordinates []float64          `json:"coordinates"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
	Value       float64            `json:"value"`
	Error       *float64           `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewRecord stamps an evaluation with a fresh ID and the current time.
// Sample names the design or acquisition that produced x.
func NewRecord(sample string, iteration int, names []string, x []float64, out Outcome) Record {
	rec := Record{
		ID:          uuid.NewString(),
		Sample:      sample,
		Iteration:   iteration,
		Coordinates: append([]float64(nil), x...),
		Value:       out.Value,
		CreatedAt:   time.Now().UTC(),
	}
	if out.Error != nil {
		e := *out.Error
		rec.Error = &e
	}
	if len(names) == len(x) {
		rec.Parameters = make(map[string]float64, len(x))
		for i, n := range names {
			rec.Parameters[n] = x[i]
		}
	}
	return rec
}

// Training splits records into coordinates, values and errors. Errors are
// returned only when every record carries one.
func Training(records []Record) (x [][]float64, y, yErr []float64) {
	x = make([][]float64, len(records))
	y = make([]float64, len(records))
	yErr = make([]float64, len(records))
	for i, r := range records {
		x[i] = append([]float64(nil), r.Coordinates...)
		y[i] = r.Value
		if r.Error == nil {
			yErr = nil
			continue
		}
		if yErr != nil {
			yErr[i] = *r.Error
		}
	}
	if len(records) == 0 {
		yErr = nil
	}
	return x, y, yErr
}

// BestRecord returns the record with the largest value.
func BestRecord(records []Record) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.Value > best.Value {
			best = r
		}
	}
	return best, true
}

// LastIteration returns the largest iteration number among records.
func LastIteration(records []Record) int {
	last := 0
	for _, r := range records {
		if r.Iteration > last {
			last = r.Iteration
		}
	}
	return last
}
