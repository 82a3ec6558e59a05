package evo

import (
	"context"
	"testing"
)

func TestStreamYieldsEveryGeneration(t *testing.T) {
	cfg := engineConfigForTarget(t, "AB", "AAAA")
	cfg.PopulationSize = 20
	cfg.MutationRate = 0.05
	cfg.Seed = 41

	stream, err := StreamRun(context.Background(), cfg, seededInitial(cfg, 41))
	if err != nil {
		t.Fatalf("stream run: %v", err)
	}

	var records []GenerationRecord
	for record := range stream.Records() {
		records = append(records, record)
	}
	result, err := stream.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	if result.Reason != ReasonSuccess {
		t.Fatalf("expected success, got %s", result.Reason)
	}
	if len(records) != result.Generations+1 {
		t.Fatalf("streamed %d records for %d generations", len(records), result.Generations)
	}
	for i, record := range records {
		if record.Generation != i {
			t.Fatalf("record %d labelled generation %d", i, record.Generation)
		}
	}
	last := records[len(records)-1]
	if last.Best.Genome.Letters != result.Best.Genome.Letters {
		t.Fatalf("final record best %q disagrees with result %q", last.Best.Genome.Letters, result.Best.Genome.Letters)
	}
}

func TestStreamConsumerCanAbandonRun(t *testing.T) {
	cfg := engineConfigForTarget(t, "A", "BBBB") // unreachable target, unbounded run
	cfg.PopulationSize = 8

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := StreamRun(ctx, cfg, seededInitial(cfg, 43))
	if err != nil {
		t.Fatalf("stream run: %v", err)
	}

	<-stream.Records()
	cancel()
	for range stream.Records() {
		// Drain whatever was in flight.
	}

	result, err := stream.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.Reason != ReasonCancelled {
		t.Fatalf("expected cancelled, got %s", result.Reason)
	}
}
