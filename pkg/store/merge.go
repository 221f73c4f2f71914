package store

import (
	"errors"
	"fmt"
)

// MergeStats tracks merge operation statistics.
type MergeStats struct {
	RunsMerged  int
	UnitsMerged int
}

// MergeInto copies every run in source, with its units, into dest.
func MergeInto(dest, source Store) (*MergeStats, error) {
	runs, err := source.GetRuns()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	stats := &MergeStats{}
	for _, run := range runs {
		_, err := dest.GetRun(run.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRunNotFound) {
			return stats, err
		}

		if err := dest.AddRun(run); err != nil {
			return stats, err
		}
		stats.RunsMerged++

		units, err := source.GetUnits(run.ID)
		if err != nil {
			return stats, fmt.Errorf("listing units of run %s: %w", run.ID, err)
		}
		for seq, rec := range units {
			if err := dest.AddUnit(run.ID, seq, rec); err != nil {
				return stats, err
			}
			stats.UnitsMerged++
		}
	}
	return stats, nil
}
