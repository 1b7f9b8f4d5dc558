package model

import "math"

// Scaler standardizes features to zero mean and unit variance. Parameters
// are fixed by the training split and shipped inside the bundle; inference
// applies the same transform.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// fitScaler computes per-column mean and standard deviation. Columns with
// zero variance get std 1 so the transform never divides by zero.
func fitScaler(rows [][]float64) Scaler {
	if len(rows) == 0 {
		return Scaler{}
	}
	cols := len(rows[0])
	mean := make([]float64, cols)
	std := make([]float64, cols)

	for _, row := range rows {
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(rows))
	for j := range mean {
		mean[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			std[j] = 1
		}
	}

	return Scaler{Mean: mean, Std: std}
}

// transform standardizes rows in place and returns them.
func (s Scaler) transform(rows [][]float64) [][]float64 {
	for _, row := range rows {
		s.transformRow(row)
	}
	return rows
}

func (s Scaler) transformRow(row []float64) []float64 {
	for j := range row {
		row[j] = (row[j] - s.Mean[j]) / s.Std[j]
	}
	return row
}
