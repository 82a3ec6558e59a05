package evo

import (
	"context"

	"weasel/internal/model"
)

// Stream exposes a run as a pull-based sequence of generation records. The
// engine blocks on each send, so it advances only as fast as the consumer
// reads; a consumer that walks away just cancels the context. The records
// channel closes when the run terminates, after which Wait returns the
// termination report.
type Stream struct {
	records chan GenerationRecord
	done    chan struct{}
	result  RunResult
	err     error
}

// StreamRun starts the configured run in the background and returns its
// record stream. Any Progress hook already present in cfg still fires before
// each record is offered to the stream.
func StreamRun(ctx context.Context, cfg EngineConfig, initial []model.Genome) (*Stream, error) {
	s := &Stream{
		records: make(chan GenerationRecord),
		done:    make(chan struct{}),
	}

	prev := cfg.Progress
	cfg.Progress = func(record GenerationRecord) {
		if prev != nil {
			prev(record)
		}
		select {
		case s.records <- record:
		case <-ctx.Done():
		}
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		s.result, s.err = engine.Run(ctx, initial)
		close(s.records)
		close(s.done)
	}()
	return s, nil
}

// Records yields one GenerationRecord per evaluated generation, starting at
// generation 0.
func (s *Stream) Records() <-chan GenerationRecord {
	return s.records
}

// Wait blocks until the run terminates and returns its report.
func (s *Stream) Wait() (RunResult, error) {
	<-s.done
	return s.result, s.err
}
