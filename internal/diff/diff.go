// Package diff implements content-hash change detection for series and the
// day-set diffing used by consolidation.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/aquadecl/releve-core/internal/model"
)

// hashLen truncates the content hash for readability; collisions across the
// handful of series under one attachment are out of scope.
const hashLen = 12

// canonicalSeries is the fixed-field-order shape serialized for hashing.
// Points are sorted by (date, time) so input ordering never changes the hash.
type canonicalSeries struct {
	PointID   string           `json:"point_id"`
	Parameter string           `json:"parameter"`
	Unit      string           `json:"unit"`
	Frequency string           `json:"frequency"`
	ValueType model.ValueType  `json:"value_type"`
	MinDate   string           `json:"min_date"`
	MaxDate   string           `json:"max_date"`
	Data      []canonicalPoint `json:"data"`
}

type canonicalPoint struct {
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Value       *float64 `json:"value"`
	Remark      string   `json:"remark"`
	DaysCovered int      `json:"days_covered"`
}

// Hash computes the deterministic content hash of a raw series, truncated to
// 12 hex characters.
func Hash(raw model.RawSeries) string {
	c := canonicalSeries{
		PointID:   raw.PointID,
		Parameter: raw.Parameter,
		Unit:      raw.Unit,
		Frequency: raw.Frequency,
		ValueType: raw.ValueType,
		MinDate:   raw.MinDate,
		MaxDate:   raw.MaxDate,
		Data:      make([]canonicalPoint, 0, len(raw.Data)),
	}
	for _, p := range raw.Data {
		c.Data = append(c.Data, canonicalPoint{
			Date:        p.Date,
			Time:        p.Time,
			Value:       p.Value,
			Remark:      p.Remark,
			DaysCovered: p.DaysCovered,
		})
	}
	sort.SliceStable(c.Data, func(i, j int) bool {
		if c.Data[i].Date != c.Data[j].Date {
			return c.Data[i].Date < c.Data[j].Date
		}
		return c.Data[i].Time < c.Data[j].Time
	})

	// Struct marshaling is deterministic, so the JSON form is canonical.
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:hashLen]
}

// Hashed pairs a raw series with its content hash.
type Hashed struct {
	Raw  model.RawSeries
	Hash string
}

// HashAll hashes each raw series in order.
func HashAll(raws []model.RawSeries) []Hashed {
	out := make([]Hashed, 0, len(raws))
	for _, r := range raws {
		out = append(out, Hashed{Raw: r, Hash: Hash(r)})
	}
	return out
}

// SeriesDiff classifies incoming series against the stored ones. A series is
// identified purely by its content hash: any change to a monitored field
// forces a full delete and recreate, there is no partial-update path.
type SeriesDiff struct {
	// ToDelete holds stored series whose hash is absent from the incoming set.
	ToDelete []model.Series
	// ToCreate holds incoming series whose hash is absent from the stored set.
	ToCreate []Hashed
	// UnchangedCount counts incoming series whose hash is already stored.
	UnchangedCount int
}

// CompareSeries diffs stored series against freshly hashed incoming ones.
func CompareSeries(existing []model.Series, incoming []Hashed) SeriesDiff {
	incomingHashes := make(map[string]bool, len(incoming))
	for _, h := range incoming {
		incomingHashes[h.Hash] = true
	}
	existingHashes := make(map[string]bool, len(existing))
	for _, s := range existing {
		existingHashes[s.ContentHash] = true
	}

	var d SeriesDiff
	for _, s := range existing {
		if !incomingHashes[s.ContentHash] {
			d.ToDelete = append(d.ToDelete, s)
		}
	}
	for _, h := range incoming {
		if existingHashes[h.Hash] {
			d.UnchangedCount++
		} else {
			d.ToCreate = append(d.ToCreate, h)
		}
	}
	return d
}

// DayDiff is the outcome of diffing a series' candidate days against its
// previously integrated days.
type DayDiff struct {
	ToAdd          []string
	ToRemove       []string
	UnchangedCount int
}

// CompareDays diffs two day lists by set membership. Inputs are not
// de-duplicated: duplicate days propagate into ToAdd/ToRemove, which is safe
// because ledger claim and release are idempotent.
func CompareDays(existing, incoming []string) DayDiff {
	existingSet := make(map[string]bool, len(existing))
	for _, d := range existing {
		existingSet[d] = true
	}
	incomingSet := make(map[string]bool, len(incoming))
	for _, d := range incoming {
		incomingSet[d] = true
	}

	var d DayDiff
	for _, day := range incoming {
		if existingSet[day] {
			d.UnchangedCount++
		} else {
			d.ToAdd = append(d.ToAdd, day)
		}
	}
	for _, day := range existing {
		if !incomingSet[day] {
			d.ToRemove = append(d.ToRemove, day)
		}
	}
	return d
}
