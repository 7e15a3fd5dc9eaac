package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river"
)

func TestNotificationFanoutArgsKind(t *testing.T) {
	t.Parallel()

	if got := (NotificationFanoutArgs{}).Kind(); got != "notification_fanout" {
		t.Fatalf("Kind() = %q, want %q", got, "notification_fanout")
	}
}

func TestNotificationFanoutArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (NotificationFanoutArgs{}).InsertOpts()
	if opts.Queue != river.QueueDefault {
		t.Fatalf("Queue = %q, want %q", opts.Queue, river.QueueDefault)
	}
	if opts.MaxAttempts != 5 {
		t.Fatalf("MaxAttempts = %d, want 5", opts.MaxAttempts)
	}
	if !opts.UniqueOpts.ByArgs {
		t.Fatal("UniqueOpts.ByArgs = false, want true")
	}
	if !opts.UniqueOpts.ByQueue {
		t.Fatal("UniqueOpts.ByQueue = false, want true")
	}
}

func TestDedupSweepArgsKind(t *testing.T) {
	t.Parallel()

	if got := (DedupSweepArgs{}).Kind(); got != "dedup_sweep" {
		t.Fatalf("Kind() = %q, want %q", got, "dedup_sweep")
	}
}

func TestDedupSweepArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (DedupSweepArgs{}).InsertOpts()
	if opts.MaxAttempts != 1 {
		t.Fatalf("MaxAttempts = %d, want 1", opts.MaxAttempts)
	}
	if opts.UniqueOpts.ByPeriod != time.Hour {
		t.Fatalf("UniqueOpts.ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, time.Hour)
	}
}

func TestNotificationCleanupArgsKind(t *testing.T) {
	t.Parallel()

	if got := (NotificationCleanupArgs{}).Kind(); got != "notification_cleanup" {
		t.Fatalf("Kind() = %q, want %q", got, "notification_cleanup")
	}
}

func TestNotificationCleanupArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (NotificationCleanupArgs{}).InsertOpts()
	if opts.Queue != river.QueueDefault {
		t.Fatalf("Queue = %q, want %q", opts.Queue, river.QueueDefault)
	}
	if opts.MaxAttempts != 1 {
		t.Fatalf("MaxAttempts = %d, want 1", opts.MaxAttempts)
	}
	if opts.UniqueOpts.ByPeriod != 24*time.Hour {
		t.Fatalf("UniqueOpts.ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, 24*time.Hour)
	}
}

func TestNewNotificationCleanupWorkerRetention(t *testing.T) {
	t.Parallel()

	worker := NewNotificationCleanupWorker(nil, 0)
	if worker.retention != DefaultNotificationRetention {
		t.Fatalf("retention = %s, want %s", worker.retention, DefaultNotificationRetention)
	}

	worker = NewNotificationCleanupWorker(nil, 10*24*time.Hour)
	if worker.retention != 10*24*time.Hour {
		t.Fatalf("retention = %s, want %s", worker.retention, 10*24*time.Hour)
	}
}

func TestEventReplayArgsKind(t *testing.T) {
	t.Parallel()

	if got := (EventReplayArgs{}).Kind(); got != "event_replay" {
		t.Fatalf("Kind() = %q, want %q", got, "event_replay")
	}
}
