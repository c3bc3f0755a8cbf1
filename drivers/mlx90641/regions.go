package mlx90641

// RegionMeans holds the mean temperature of the four 5x5 corner windows and
// the 4x4 centre window of a frame. Used for sky cloud estimation: a clear
// sky reads much colder at the zenith (centre) than near the horizon
// (corners).
type RegionMeans struct {
	TL     float64
	TR     float64
	BL     float64
	BR     float64
	Center float64
}

// rect is an inclusive row/column window on the pixel grid.
type rect struct {
	name           string
	r0, r1, c0, c1 int
}

// The five windows are pairwise disjoint on the 12x16 grid.
var regions = [5]rect{
	{"TL", 0, 4, 0, 4},
	{"TR", 0, 4, 11, 15},
	{"BL", 7, 11, 0, 4},
	{"BR", 7, 11, 11, 15},
	{"CTR", 4, 7, 6, 9},
}

// AggregateRegions computes the unweighted mean of each window. A pure
// function: non-finite pixels propagate into the affected mean, and the
// consumer decides how to present them.
func AggregateRegions(f *Frame) RegionMeans {
	var vals [5]float64
	for ri, rg := range regions {
		sum := 0.0
		n := 0
		for r := rg.r0; r <= rg.r1; r++ {
			for c := rg.c0; c <= rg.c1; c++ {
				sum += f.At(r, c)
				n++
			}
		}
		vals[ri] = sum / float64(n)
	}
	return RegionMeans{
		TL:     vals[0],
		TR:     vals[1],
		BL:     vals[2],
		BR:     vals[3],
		Center: vals[4],
	}
}

// CornerMean is the average of the four corner means, the horizon-side
// reference for the cloud delta.
func (m RegionMeans) CornerMean() float64 {
	return (m.TL + m.TR + m.BL + m.BR) / 4
}

// CloudDelta is cornerMean - center. Larger values mean a colder zenith,
// i.e. clearer sky.
func (m RegionMeans) CloudDelta() float64 {
	return m.CornerMean() - m.Center
}
