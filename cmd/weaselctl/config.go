package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"weasel/pkg/weasel"
)

// RunProfile is the YAML shape accepted by -config. Flags set explicitly on
// the command line override profile values.
type RunProfile struct {
	Target            string  `yaml:"target"`
	Alphabet          string  `yaml:"alphabet"`
	Population        int     `yaml:"population"`
	MutationRate      float64 `yaml:"mutation_rate"`
	Selection         string  `yaml:"selection"`
	SelectionFraction float64 `yaml:"selection_fraction"`
	SelectionRounding string  `yaml:"selection_rounding"`
	EliteCount        int     `yaml:"elite_count"`
	Generations       int     `yaml:"generations"`
	MaxDuration       string  `yaml:"max_duration"`
	Seed              int64   `yaml:"seed"`
	Workers           int     `yaml:"workers"`
}

func loadRunProfile(path string) (weasel.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return weasel.RunRequest{}, err
	}

	var profile RunProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return weasel.RunRequest{}, fmt.Errorf("parse run profile %s: %w", path, err)
	}

	req := weasel.RunRequest{
		Target:            profile.Target,
		Alphabet:          profile.Alphabet,
		Population:        profile.Population,
		MutationRate:      profile.MutationRate,
		Selection:         profile.Selection,
		SelectionFraction: profile.SelectionFraction,
		SelectionRounding: profile.SelectionRounding,
		EliteCount:        profile.EliteCount,
		Generations:       profile.Generations,
		Seed:              profile.Seed,
		Workers:           profile.Workers,
	}
	if profile.MaxDuration != "" {
		duration, err := time.ParseDuration(profile.MaxDuration)
		if err != nil {
			return weasel.RunRequest{}, fmt.Errorf("parse max_duration in %s: %w", path, err)
		}
		req.MaxDuration = duration
	}
	return req, nil
}

// runFlags groups the per-run flags so run and benchmark share one
// definition.
type runFlags struct {
	target            *string
	alphabet          *string
	population        *int
	mutationRate      *float64
	selection         *string
	selectionFraction *float64
	selectionRounding *string
	eliteCount        *int
	generations       *int
	maxDuration       *time.Duration
	seed              *int64
	workers           *int
}

func registerRunFlags(fs *flag.FlagSet) *runFlags {
	return &runFlags{
		target:            fs.String("target", "", "target string to evolve towards"),
		alphabet:          fs.String("alphabet", "", "symbol alphabet (empty uses printable ASCII)"),
		population:        fs.Int("pop", 100, "population size"),
		mutationRate:      fs.Float64("mutation-rate", 0, "per-symbol mutation rate (0 uses the default 0.01)"),
		selection:         fs.String("selection", "truncation", "parent selection strategy: truncation|tournament"),
		selectionFraction: fs.Float64("selection-fraction", 0, "share of the ranking kept for breeding (0 uses the default 0.5)"),
		selectionRounding: fs.String("selection-rounding", "down", "breeding stock rounding: down|up"),
		eliteCount:        fs.Int("elites", 0, "individuals carried unchanged per generation (0 disables elitism)"),
		generations:       fs.Int("gens", 1000, "generation limit"),
		maxDuration:       fs.Duration("max-duration", 0, "wall-clock limit (0 disables)"),
		seed:              fs.Int64("seed", 1, "rng seed"),
		workers:           fs.Int("workers", 4, "evaluation worker count"),
	}
}

func (f *runFlags) request() weasel.RunRequest {
	return weasel.RunRequest{
		Target:            *f.target,
		Alphabet:          *f.alphabet,
		Population:        *f.population,
		MutationRate:      *f.mutationRate,
		Selection:         *f.selection,
		SelectionFraction: *f.selectionFraction,
		SelectionRounding: *f.selectionRounding,
		EliteCount:        *f.eliteCount,
		Generations:       *f.generations,
		MaxDuration:       *f.maxDuration,
		Seed:              *f.seed,
		Workers:           *f.workers,
	}
}

// override applies only the flags the user set explicitly on top of a
// profile-derived request.
func (f *runFlags) override(req *weasel.RunRequest, set map[string]bool) {
	if set["target"] {
		req.Target = *f.target
	}
	if set["alphabet"] {
		req.Alphabet = *f.alphabet
	}
	if set["pop"] {
		req.Population = *f.population
	}
	if set["mutation-rate"] {
		req.MutationRate = *f.mutationRate
	}
	if set["selection"] {
		req.Selection = *f.selection
	}
	if set["selection-fraction"] {
		req.SelectionFraction = *f.selectionFraction
	}
	if set["selection-rounding"] {
		req.SelectionRounding = *f.selectionRounding
	}
	if set["elites"] {
		req.EliteCount = *f.eliteCount
	}
	if set["gens"] {
		req.Generations = *f.generations
	}
	if set["max-duration"] {
		req.MaxDuration = *f.maxDuration
	}
	if set["seed"] {
		req.Seed = *f.seed
	}
	if set["workers"] {
		req.Workers = *f.workers
	}
}

func resolveRunRequest(fs *flag.FlagSet, flags *runFlags, configPath string) (weasel.RunRequest, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	if configPath == "" {
		return flags.request(), nil
	}
	req, err := loadRunProfile(configPath)
	if err != nil {
		return weasel.RunRequest{}, err
	}
	flags.override(&req, setFlags)
	return req, nil
}
