package main

import (
	"context"
	"errors"
	"testing"

	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

func TestUpdatesFailed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"clean exit", nil, false},
		{"shutdown", context.Canceled, false},
		{"wrapped shutdown", xerrors.Wrap(context.Canceled, "watch content"), false},
		{"watcher error", errors.New("inotify: too many open files"), true},
		{"poll timeout", context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := updatesFailed(tt.err); got != tt.want {
				t.Fatalf("updatesFailed(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
