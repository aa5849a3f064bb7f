package regionrank

import "sort"

// Ranker keeps measurements ordered by descending download speed.
// Equal speeds are ordered by region name so distinct regions never collide.
type Ranker struct {
	measurements []Measurement
}

func NewRanker() *Ranker {
	return &Ranker{measurements: []Measurement{}}
}

func ranksBefore(a, b Measurement) bool {
	if a.DownloadMbps != b.DownloadMbps {
		return a.DownloadMbps > b.DownloadMbps
	}
	return a.Region < b.Region
}

// Add inserts m and reports whether it was new.
func (r *Ranker) Add(m Measurement) bool {
	index := sort.Search(len(r.measurements), func(i int) bool {
		return !ranksBefore(r.measurements[i], m)
	})

	if index < len(r.measurements) && r.measurements[index] == m {
		return false
	}

	r.measurements = append(r.measurements, Measurement{})
	copy(r.measurements[index+1:], r.measurements[index:])
	r.measurements[index] = m

	return true
}

func (r *Ranker) Len() int {
	return len(r.measurements)
}

// Ranked returns a copy of the measurements, fastest first.
func (r *Ranker) Ranked() []Measurement {
	ret := make([]Measurement, len(r.measurements))
	copy(ret, r.measurements)
	return ret
}

func (r *Ranker) Speeds() []float64 {
	ret := make([]float64, 0, len(r.measurements))
	for _, m := range r.measurements {
		ret = append(ret, m.DownloadMbps)
	}
	return ret
}
