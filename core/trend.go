package core

import (
	"github.com/sajari/regression"
)

// minTrendSamples is how much history a pair needs before a slope is
// considered meaningful.
const minTrendSamples = 3

// RSRPTrend fits a linear regression of RSRP over elapsed time for one
// (station, cell) history window and returns the slope in dB per second.
// ok is false when there is not enough history or the fit is degenerate.
//
// The hybrid tie-break uses this to prefer the recommendation whose
// target is improving rather than the one that merely looks strongest at
// this instant.
func RSRPTrend(samples []MetricSample) (slope float64, ok bool) {
	if len(samples) < minTrendSamples {
		return 0, false
	}

	r := new(regression.Regression)
	r.SetObserved("rsrp_dbm")
	r.SetVar(0, "elapsed_s")

	t0 := samples[0].Timestamp
	for _, s := range samples {
		r.Train(regression.DataPoint(s.RSRPDBm, []float64{s.Timestamp.Sub(t0).Seconds()}))
	}
	if err := r.Run(); err != nil {
		return 0, false
	}
	return r.Coeff(1), true
}
