package features

import (
	"SOCPulse/internal/domain/models"
	"SOCPulse/pkg/util"
)

// ClipQuantile is the upper quantile count features are clipped to.
const ClipQuantile = 0.99

// ColumnScale is the fitted clip + min-max transform of one column.
type ColumnScale struct {
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Clip  float64 `json:"clip"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Normalizer clips count features at the 99th percentile and scales them
// to [0,1]. It is fitted on training rows and stored with the classifier
// so inference vectors go through the same transform.
type Normalizer struct {
	Columns []ColumnScale `json:"columns"`
}

// FitNormalizer fits the transform for the named columns over rows.
// Columns with no spread are left untouched.
func FitNormalizer(rows []models.FeatureVector, columns []string) Normalizer {
	var n Normalizer
	if len(rows) == 0 {
		return n
	}
	for _, name := range columns {
		idx := indexOf(rows[0].Names, name)
		if idx < 0 {
			continue
		}
		col := make([]float64, len(rows))
		for i, r := range rows {
			col[i] = r.Values[idx]
		}
		clip := util.Quantile(col, ClipQuantile)
		lo, hi := col[0], col[0]
		for _, v := range col {
			if v > clip {
				v = clip
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi <= 0 || hi == lo {
			continue
		}
		n.Columns = append(n.Columns, ColumnScale{Index: idx, Name: name, Clip: clip, Min: lo, Max: hi})
	}
	return n
}

// Apply returns a transformed copy of v.
func (n Normalizer) Apply(v models.FeatureVector) models.FeatureVector {
	out := models.FeatureVector{
		Names:  v.Names,
		Values: append([]float64(nil), v.Values...),
		Label:  v.Label,
	}
	for _, c := range n.Columns {
		if c.Index >= len(out.Values) {
			continue
		}
		x := out.Values[c.Index]
		if x > c.Clip {
			x = c.Clip
		}
		out.Values[c.Index] = util.Clamp((x-c.Min)/(c.Max-c.Min), 0, 1)
	}
	return out
}

// ApplyAll transforms every row.
func (n Normalizer) ApplyAll(rows []models.FeatureVector) []models.FeatureVector {
	out := make([]models.FeatureVector, len(rows))
	for i, r := range rows {
		out[i] = n.Apply(r)
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
