package regionrank

import (
	"log"
	"math"
)

type Stats struct {
	NSamples int
	Mean     float64
	StdDev   float64
	StdErr   float64
	Min      float64
	MinIndex int
	Max      float64
	MaxIndex int
}

func getMean(series []float64) float64 {
	ret := float64(0)
	nSamplesF64 := float64(len(series))

	for _, element := range series {
		ret += element / nSamplesF64
	}

	return ret
}

func getSquareMean(series []float64) float64 {
	ret := float64(0)
	nSamplesF64 := float64(len(series))

	for _, element := range series {
		ret += element * element / nSamplesF64
	}

	return ret
}

// getStats returns nil for an empty series.
func getStats(series []float64) *Stats {
	if len(series) == 0 {
		return nil
	}

	ret := &Stats{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}

	for index, element := range series {
		if element < ret.Min {
			ret.Min = element
			ret.MinIndex = index
		}
		if element > ret.Max {
			ret.Max = element
			ret.MaxIndex = index
		}
	}

	ret.NSamples = len(series)
	ret.Mean = getMean(series)
	ret.StdDev = math.Sqrt(math.Max(getSquareMean(series)-ret.Mean*ret.Mean, 0))
	ret.StdErr = ret.StdDev / math.Sqrt(float64(ret.NSamples))

	return ret
}

// printDownloadStats prints a console summary of the ranked download speeds.
func printDownloadStats(printer *log.Logger, ranked []Measurement) {
	speeds := []float64{}
	for _, m := range ranked {
		speeds = append(speeds, m.DownloadMbps)
	}

	stats := getStats(speeds)
	if stats == nil {
		printer.Println("No region produced a download measurement")
		return
	}

	printer.Printf("Download-mean: %.3f Mbps\n", stats.Mean)
	printer.Printf("Download-stddev: %.3f Mbps\n", stats.StdDev)
	printer.Printf("Download-stderr: %.3f Mbps\n", stats.StdErr)
	printer.Printf("Download-min: %.3f Mbps (%s)\n", stats.Min, ranked[stats.MinIndex].Region)
	printer.Printf("Download-max: %.3f Mbps (%s)\n", stats.Max, ranked[stats.MaxIndex].Region)
	printer.Printf("Download-n: %d\n", stats.NSamples)
}
