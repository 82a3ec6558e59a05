package storage

import (
	"context"
	"testing"

	"weasel/internal/model"
)

func versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRunSummary(context.Background(), model.RunSummary{ID: "r1"}); err == nil {
		t.Fatal("expected error writing to uninitialized store")
	}
}

func TestMemoryStoreRunSummaryRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	summary := model.RunSummary{
		VersionedRecord: versioned(),
		ID:              "r1",
		Target:          "WEASEL",
		Reason:          "success",
		Generations:     12,
		BestLetters:     "WEASEL",
		BestFitness:     6,
	}
	if err := store.SaveRunSummary(ctx, summary); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.GetRunSummary(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Target != "WEASEL" || got.Generations != 12 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	if _, ok, err := store.GetRunSummary(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent run, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListIsSorted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, id := range []string{"b", "c", "a"} {
		if err := store.SaveRunSummary(ctx, model.RunSummary{VersionedRecord: versioned(), ID: id}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	summaries, err := store.ListRunSummaries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 3 || summaries[0].ID != "a" || summaries[2].ID != "c" {
		t.Fatalf("unexpected listing: %+v", summaries)
	}
}

func TestMemoryStoreHistoriesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	history := []int{1, 2, 3}
	if err := store.SaveFitnessHistory(ctx, "r1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history[0] = 99

	got, ok, err := store.GetFitnessHistory(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%v err=%v", ok, err)
	}
	if got[0] != 1 {
		t.Fatal("store shared the caller's slice")
	}
	got[1] = 99
	again, _, _ := store.GetFitnessHistory(ctx, "r1")
	if again[1] != 2 {
		t.Fatal("store returned its internal slice")
	}
}

func TestMemoryStoreLineageAndTopGenomes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	lineage := []model.LineageRecord{{GenomeID: "g1", Generation: 0, Operation: "seed"}}
	if err := store.SaveLineage(ctx, "r1", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	gotLineage, ok, err := store.GetLineage(ctx, "r1")
	if err != nil || !ok || len(gotLineage) != 1 || gotLineage[0].GenomeID != "g1" {
		t.Fatalf("lineage roundtrip failed: ok=%v err=%v %+v", ok, err, gotLineage)
	}

	top := []model.TopGenomeRecord{{Rank: 1, Fitness: 6, Genome: model.Genome{ID: "g1", Letters: "WEASEL"}}}
	if err := store.SaveTopGenomes(ctx, "r1", top); err != nil {
		t.Fatalf("save top: %v", err)
	}
	gotTop, ok, err := store.GetTopGenomes(ctx, "r1")
	if err != nil || !ok || len(gotTop) != 1 || gotTop[0].Genome.Letters != "WEASEL" {
		t.Fatalf("top genomes roundtrip failed: ok=%v err=%v %+v", ok, err, gotTop)
	}
}

func TestMemoryStoreTargetSummaryAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	summary := model.TargetSummary{VersionedRecord: versioned(), Target: "WEASEL", BestFitness: 5, TotalRuns: 2}
	if err := store.SaveTargetSummary(ctx, summary); err != nil {
		t.Fatalf("save target summary: %v", err)
	}
	got, ok, err := store.GetTargetSummary(ctx, "WEASEL")
	if err != nil || !ok || got.BestFitness != 5 {
		t.Fatalf("target summary roundtrip failed: ok=%v err=%v %+v", ok, err, got)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := store.GetTargetSummary(ctx, "WEASEL"); ok {
		t.Fatal("expected empty store after reset")
	}
}
