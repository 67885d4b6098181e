package prof

import (
	"context"
	"slices"
	"testing"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-book/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())
	// nothing is validated while disabled
	stop, err := Start(ctx, Options{MutexFraction: 5})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
	stop()
}

func TestStart_InvalidOptions(t *testing.T) {
	tests := []Options{
		{Enabled: true, AppName: "book"},
		{Enabled: true, ServerAddress: "http://127.0.0.1:4040"},
	}
	for _, o := range tests {
		stop, err := Start(context.Background(), o)
		if err == nil {
			t.Errorf("Start(%+v) succeeded", o)
		}
		if stop == nil {
			t.Fatal("stop func must be non-nil on error")
		}
		stop()
	}
}

func TestProfiles(t *testing.T) {
	base := Options{}.profiles()
	if len(base) != len(baseProfiles) || slices.Contains(base, pyroscope.ProfileMutexCount) {
		t.Fatalf("base profiles = %v", base)
	}

	all := Options{MutexFraction: 5, BlockRate: 1}.profiles()
	for _, want := range []pyroscope.ProfileType{pyroscope.ProfileMutexDuration, pyroscope.ProfileBlockCount} {
		if !slices.Contains(all, want) {
			t.Errorf("%s missing from %v", want, all)
		}
	}
	if len(baseProfiles) != 6 {
		t.Fatal("profiles() must not grow the shared base slice")
	}
}

func TestTagKeys(t *testing.T) {
	got := tagKeys(map[string]string{"version": "1", "app": "book", "component": "server"})
	if !slices.Equal(got, []string{"app", "component", "version"}) {
		t.Fatalf("keys = %v", got)
	}
}
