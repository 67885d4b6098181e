// Package prof runs the Pyroscope continuous profiling agent.
package prof

import (
	"context"
	"runtime"
	"sort"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-book/internal/log"
	"github.com/keithlinneman/linnemanlabs-book/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	TenantID      string
	Tags          map[string]string

	// Contention profiles cost runtime overhead and stay off unless set.
	MutexFraction int
	BlockRate     int
}

// baseProfiles are always collected; mutex and block profiles join when
// their runtime sampling is turned on.
var baseProfiles = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

func (o Options) profiles() []pyroscope.ProfileType {
	out := append([]pyroscope.ProfileType(nil), baseProfiles...)
	if o.MutexFraction > 0 {
		out = append(out, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration)
	}
	if o.BlockRate > 0 {
		out = append(out, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	}
	return out
}

func (o Options) validate() error {
	if o.ServerAddress == "" {
		return xerrors.New("pyroscope server address is required")
	}
	if o.AppName == "" {
		return xerrors.New("pyroscope application name is required")
	}
	return nil
}

// Start launches the agent and returns its stop func. The stop func is
// always non-nil and safe to call more than once.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	noop := func() {}

	if !opts.Enabled {
		L.Debug(ctx, "pyroscope disabled")
		return noop, nil
	}
	if err := opts.validate(); err != nil {
		return noop, err
	}

	if opts.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.MutexFraction)
	}
	if opts.BlockRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockRate)
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    opts.profiles(),
	})
	if err != nil {
		return noop, xerrors.Wrapf(err, "start pyroscope agent for %s", opts.ServerAddress)
	}
	L.Info(ctx, "pyroscope started", "server_address", opts.ServerAddress, "tags", tagKeys(opts.Tags))

	stopped := false
	return func() {
		if stopped {
			return
		}
		stopped = true
		p.Stop()
		L.Info(context.Background(), "pyroscope stopped")
	}, nil
}

func tagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
