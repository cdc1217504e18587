package visibility

import (
	"context"
	"fmt"

	"github.com/koustreak/bucketvis/internal/metrics"
	"github.com/koustreak/bucketvis/internal/notify"
)

// report emits the single notification, metric and log line for one
// mutation attempt.
func (s *Service) report(ctx context.Context, op, bucket, path string, res *Result, err error) {
	outcome, level, text := describe(op, bucket, path, res, err)

	s.metrics.Mutation(op, outcome)

	fields := map[string]any{"operation": op, "bucket": bucket, "path": path, "outcome": outcome}
	if err != nil {
		s.log.WarnWith("policy mutation failed", err, fields)
	} else {
		s.log.InfoWith("policy mutation", fields)
	}

	msg := notify.Message{
		Time:      s.now().UTC(),
		Level:     level,
		Operation: op,
		Bucket:    bucket,
		Path:      path,
		Text:      text,
	}
	if nerr := s.sink.Notify(ctx, msg); nerr != nil {
		s.log.WarnWith("notification not delivered", nerr, fields)
	}
}

func describe(op, bucket, path string, res *Result, err error) (outcome string, level notify.Level, text string) {
	name := path
	if name == "" {
		name = bucket
	}

	switch {
	case err != nil:
		return metrics.OutcomeFailure, notify.LevelError, fmt.Sprintf("%s failed for %s: %v", verb(op), name, err)
	case res.Disabled:
		return metrics.OutcomeDisabled, notify.LevelWarning, fmt.Sprintf("%s is already public through a parent directory", name)
	case !res.Changed:
		return metrics.OutcomeNoop, notify.LevelSuccess, fmt.Sprintf("%s: nothing to change for %s", verb(op), name)
	}

	switch op {
	case OpSetPublic:
		text = fmt.Sprintf("%s is now public", name)
	case OpSetPrivate:
		text = fmt.Sprintf("%s is now private", name)
	default:
		text = fmt.Sprintf("removed %s from the policy of %s", name, bucket)
	}
	return metrics.OutcomeSuccess, notify.LevelSuccess, text
}

func verb(op string) string {
	switch op {
	case OpSetPublic:
		return "make public"
	case OpSetPrivate:
		return "make private"
	default:
		return "remove policy entry"
	}
}
