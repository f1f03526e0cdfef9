package scan

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hugr-lab/mongoport-go/batch"
)

// Next fills the batch with up to its capacity of rows from the cursor.
// Rows failing enforcement are dropped (DropMalformed) or raise
// (FailFast). When the cursor drains the state is marked finished; a
// subsequent call is a no-op.
//
// A COUNT(*) pipeline over an empty collection produces no documents at
// all; the scan still owes the engine one row of 0 and emits it here.
func (s *LocalState) Next(ctx context.Context, out *batch.Batch) error {
	if s.finished {
		return nil
	}

	enforce := s.bind.Mode != batch.Permissive && s.bind.HasExplicit

	for !out.Full() {
		if !s.cursor.Next(ctx) {
			if err := s.cursor.Err(); err != nil {
				return err
			}
			s.finished = true
			break
		}
		doc := s.cursor.Current()

		if s.countOnly {
			if enforce {
				ok, err := batch.ValidateDocument(doc, s.bind.Schema, s.bind.Mode)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			out.BumpRow()
			s.emitted = true
			continue
		}

		ok, err := out.WriteRow(doc, s.bind.Mode, s.bind.HasExplicit)
		if err != nil {
			return err
		}
		if ok {
			s.emitted = true
		}
	}

	if s.finished && !s.emitted && s.countPipeline() {
		if idx := out.Schema().IndexOf("count"); idx >= 0 {
			zero, err := bson.Marshal(bson.D{{Key: "count", Value: int64(0)}})
			if err != nil {
				return err
			}
			if _, err := out.WriteRow(zero, batch.Permissive, false); err != nil {
				return err
			}
			s.emitted = true
		}
	}

	return nil
}

// Finished reports whether the cursor has drained.
func (s *LocalState) Finished() bool { return s.finished }

// countPipeline reports whether the scan runs a pipeline ending in $count.
func (s *LocalState) countPipeline() bool {
	for _, stage := range s.pipeline {
		for _, e := range stage {
			if e.Key == "$count" {
				return true
			}
		}
	}
	return false
}
