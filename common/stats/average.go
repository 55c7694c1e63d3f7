// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"math"

	"github.com/juju/errors"
)

// RunningAverage tracks the mean of a stream of values which may be added, removed or
// changed in place. It is not safe for concurrent use.
type RunningAverage struct {
	count   int
	average float64
}

func NewRunningAverage() *RunningAverage {
	return &RunningAverage{average: math.NaN()}
}

func (r *RunningAverage) AddDatum(datum float64) {
	r.count++
	if r.count == 1 {
		r.average = datum
	} else {
		r.average = r.average*float64(r.count-1)/float64(r.count) + datum/float64(r.count)
	}
}

func (r *RunningAverage) RemoveDatum(datum float64) error {
	if r.count == 0 {
		return errors.NotValidf("remove datum from empty average")
	}
	r.count--
	if r.count == 0 {
		r.average = math.NaN()
	} else {
		r.average = r.average*float64(r.count+1)/float64(r.count) - datum/float64(r.count)
	}
	return nil
}

// ChangeDatum shifts one of the existing values by delta.
func (r *RunningAverage) ChangeDatum(delta float64) error {
	if r.count == 0 {
		return errors.NotValidf("change datum of empty average")
	}
	r.average += delta / float64(r.count)
	return nil
}

func (r *RunningAverage) Count() int {
	return r.count
}

// Average returns NaN before the first datum.
func (r *RunningAverage) Average() float64 {
	return r.average
}

// RunningAverageAndStdDev also tracks the sample standard deviation (Welford).
type RunningAverageAndStdDev struct {
	RunningAverage
	mk     float64
	sk     float64
	stdDev float64
}

func NewRunningAverageAndStdDev() *RunningAverageAndStdDev {
	return &RunningAverageAndStdDev{
		RunningAverage: RunningAverage{average: math.NaN()},
		stdDev:         math.NaN(),
	}
}

func (r *RunningAverageAndStdDev) AddDatum(datum float64) {
	r.RunningAverage.AddDatum(datum)
	if r.count == 1 {
		r.mk = datum
		r.sk = 0
	} else {
		oldMk := r.mk
		diff := datum - oldMk
		r.mk += diff / float64(r.count)
		r.sk += diff * (datum - r.mk)
	}
	r.recomputeStdDev()
}

func (r *RunningAverageAndStdDev) RemoveDatum(datum float64) error {
	oldCount := r.count
	if err := r.RunningAverage.RemoveDatum(datum); err != nil {
		return errors.Trace(err)
	}
	if r.count == 0 {
		r.mk, r.sk = 0, 0
	} else {
		oldMk := r.mk
		r.mk = (float64(oldCount)*oldMk - datum) / float64(oldCount-1)
		r.sk -= (datum - r.mk) * (datum - oldMk)
	}
	r.recomputeStdDev()
	return nil
}

func (r *RunningAverageAndStdDev) ChangeDatum(float64) error {
	return errors.NotSupportedf("change datum of running standard deviation")
}

// StandardDeviation returns NaN until two values have been seen.
func (r *RunningAverageAndStdDev) StandardDeviation() float64 {
	return r.stdDev
}

func (r *RunningAverageAndStdDev) recomputeStdDev() {
	if r.count > 1 {
		r.stdDev = math.Sqrt(r.sk / float64(r.count-1))
	} else {
		r.stdDev = math.NaN()
	}
}
