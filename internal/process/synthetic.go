package process

import (
	"math"
	"math/rand/v2"
)

const (
	stepMean      = 2.5
	stepStdDev    = 1.1
	injected      = 50
	maxOutlier    = 50
	missingTail   = 40
	minDuration   = 5
	maxDuration   = 20
	maxTargetSlip = 4
)

// Generate builds the synthetic dataset for cfg. Completion offsets are
// normally distributed around the due day; outliers are injected in every
// step but the first, and the last step is missing for the latest runs.
func Generate(cfg Config) Dataset {
	r := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	d := Dataset{Steps: make([]string, cfg.Steps), Runs: make([][]float64, cfg.Runs)}
	for i := range d.Steps {
		d.Steps[i] = StepName(i)
	}
	for i := range d.Runs {
		d.Runs[i] = make([]float64, cfg.Steps)
	}
	for step := 0; step < cfg.Steps; step++ {
		for run := range d.Runs {
			d.Runs[run][step] = r.NormFloat64()*stepStdDev + stepMean
		}
	}

	if cfg.Steps > 1 {
		for i := 0; i < injected; i++ {
			step := 1 + r.IntN(cfg.Steps-1)
			run := r.IntN(cfg.Runs)
			d.Runs[run][step] = float64(r.IntN(maxOutlier))
		}
	}

	last := cfg.Steps - 1
	for run := max(0, cfg.Runs-missingTail); run < cfg.Runs; run++ {
		d.Runs[run][last] = math.NaN()
	}
	return d
}

// Schedule draws the planned milestones: consecutive durations of 5 to 20
// days, each target slipping 0 to 4 days before the cumulative end.
func Schedule(steps []string, seed uint64) ([]Task, *rand.Rand) {
	r := rand.New(rand.NewPCG(seed, seed))
	tasks := make([]Task, len(steps))
	start := 0
	for i, s := range steps {
		d := minDuration + r.IntN(maxDuration-minDuration+1)
		tasks[i] = Task{Step: s, Start: start, End: start + d, Duration: d}
		start += d
	}
	for i := range tasks {
		tasks[i].Target = tasks[i].End - r.IntN(maxTargetSlip+1)
	}
	return tasks, r
}
