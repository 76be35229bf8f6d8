// Package profiling describes the shape of bootstrap parameter populations.
package profiling

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalityAlpha is the significance level of the Jarque-Bera test.
const NormalityAlpha = 0.05

// Shape summarizes one population.
type Shape struct {
	N        int     `json:"n"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	// ExcessKurtosis is zero for a normal distribution.
	ExcessKurtosis float64 `json:"excess_kurtosis"`
	// Outliers counts values beyond 1.5 IQR of the quartiles.
	Outliers int `json:"outliers"`
	// NormalityP is the Jarque-Bera p-value. NaN below 4 values.
	NormalityP float64 `json:"normality_p"`
	IsNormal   bool    `json:"is_normal"`
}

// Describe computes the shape of data. NaN values are ignored.
func Describe(data []float64) (Shape, error) {
	clean := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Shape{}, fmt.Errorf("no values to describe")
	}

	shape := Shape{N: len(clean)}
	var err error
	if shape.Min, err = stats.Min(clean); err != nil {
		return Shape{}, err
	}
	if shape.Max, err = stats.Max(clean); err != nil {
		return Shape{}, err
	}
	if shape.Median, err = stats.Median(clean); err != nil {
		return Shape{}, err
	}
	// Quartiles need at least two values; stats.Quartile returns NaN, not an
	// error, for one.
	shape.Q25, shape.Q75 = shape.Median, shape.Median
	if len(clean) >= 2 {
		quartiles, err := stats.Quartile(clean)
		if err != nil {
			return Shape{}, err
		}
		if !math.IsNaN(quartiles.Q1) && !math.IsNaN(quartiles.Q3) {
			shape.Q25, shape.Q75 = quartiles.Q1, quartiles.Q3
		}
	}

	shape.Skewness = math.NaN()
	shape.ExcessKurtosis = math.NaN()
	shape.NormalityP = math.NaN()
	if shape.Max > shape.Min {
		if len(clean) >= 3 {
			shape.Skewness = stat.Skew(clean, nil)
		}
		if len(clean) >= 4 {
			shape.ExcessKurtosis = stat.ExKurtosis(clean, nil)
			shape.NormalityP = jarqueBera(len(clean), shape.Skewness, shape.ExcessKurtosis)
			shape.IsNormal = shape.NormalityP > NormalityAlpha
		}
	}
	shape.Outliers = countOutliers(clean, shape.Q25, shape.Q75)
	return shape, nil
}

// jarqueBera returns the asymptotic p-value of the Jarque-Bera statistic.
func jarqueBera(n int, skew, exKurt float64) float64 {
	jb := float64(n) / 6 * (skew*skew + exKurt*exKurt/4)
	return 1 - distuv.ChiSquared{K: 2}.CDF(jb)
}

func countOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lower, upper := q25-1.5*iqr, q75+1.5*iqr
	n := 0
	for _, x := range data {
		if x < lower || x > upper {
			n++
		}
	}
	return n
}
