package stratacache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/stratacache/internal/keys"
)

// ProbeResult is the outcome of one health probe.
type ProbeResult struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Detail  string
}

// Health checks both tiers: a PING round-trip against the remote store and a
// write-read-delete self-test against the local store. Disabled tiers are
// skipped.
func (c *cache[V]) Health(ctx context.Context) []ProbeResult {
	var out []ProbeResult
	if c.remote != nil {
		out = append(out, c.remotePing(ctx))
	}
	if c.local != nil {
		out = append(out, c.localSelfTest(ctx))
	}
	return out
}

func (c *cache[V]) remotePing(ctx context.Context) ProbeResult {
	lat, err := c.remote.Ping(ctx)
	if err != nil {
		return ProbeResult{Name: "remote", Detail: err.Error()}
	}
	return ProbeResult{Name: "remote", Healthy: true, Latency: lat}
}

// localSelfTest round-trips a probe entry through the local store. The probe
// key lives in this cache's namespace but is cleaned up before returning.
func (c *cache[V]) localSelfTest(ctx context.Context) ProbeResult {
	const probe = "__stratacache_probe__"
	fk := keys.Full(c.ns, probe)
	val := []byte(fmt.Sprintf("probe-%d", time.Now().UnixNano()))

	start := time.Now()
	if !c.local.Set(ctx, fk, val, 1, time.Second) {
		return ProbeResult{Name: "local", Detail: "set rejected"}
	}
	// stores with buffered admission (ristretto) apply writes asynchronously
	var (
		got []byte
		ok  bool
	)
	for i := 0; i < 20; i++ {
		if got, ok = c.local.Get(ctx, fk); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	lat := time.Since(start)
	c.local.Del(ctx, fk)
	if !ok {
		return ProbeResult{Name: "local", Latency: lat, Detail: "probe entry not readable"}
	}
	if !bytes.Equal(got, val) {
		return ProbeResult{Name: "local", Latency: lat, Detail: "probe entry mismatch"}
	}
	return ProbeResult{Name: "local", Healthy: true, Latency: lat}
}
