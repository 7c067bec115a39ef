package quantumnet

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alan-christopher/quantumnet/quantumnet/metrics"
)

// hostsWith returns two hosts whose memories hold qubits with the given
// fidelities, last element on top.
func hostsWith(t *testing.T, fa, fb []float64) (*Host, *Host) {
	t.Helper()
	alice := mustHost(t, 0, WithConnections(1))
	bob := mustHost(t, 1, WithConnections(0))
	for i, f := range fa {
		if err := alice.AddQubit(mustQubit(t, i, f)); err != nil {
			t.Fatalf("bugged test setup: %v", err)
		}
	}
	for i, f := range fb {
		if err := bob.AddQubit(mustQubit(t, 100+i, f)); err != nil {
			t.Fatalf("bugged test setup: %v", err)
		}
	}
	return alice, bob
}

func TestECHPThreshold(t *testing.T) {
	tcs := []struct {
		name   string
		fa, fb float64
		eout   bool
	}{
		{"above threshold", 0.95, 0.96, true},
		{"below threshold", 0.9, 0.9, false},
		{"perfect", 1, 1, true},
		{"exactly threshold", 0.9, 1, false},
		{"dead qubit", 0, 1, false},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			alice, bob := hostsWith(t, []float64{tc.fa}, []float64{tc.fb})
			p := NewPhysicalLayer(PhysicalLayerOpts{})
			ok, err := p.ECHP(alice, bob)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.eout {
				t.Errorf("ECHP with fidelities (%v, %v) == %t, want %t", tc.fa, tc.fb, ok, tc.eout)
			}
			if alice.Len() != 0 || bob.Len() != 0 {
				t.Errorf("attempt did not consume qubits: memories hold (%d, %d)", alice.Len(), bob.Len())
			}
			if len(p.Qubits()) != 2 {
				t.Errorf("audit trail holds %d qubits, want 2", len(p.Qubits()))
			}
		})
	}
}

func TestHeraldReturnsPair(t *testing.T) {
	alice, bob := hostsWith(t, []float64{0.99}, []float64{0.98})
	p := NewPhysicalLayer(PhysicalLayerOpts{})
	h, err := p.Herald(alice, bob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.Success || h.Pair == nil {
		t.Fatalf("Herald() == %+v, want success with a pair", h)
	}
	if h.Pair.A.ID() != 0 || h.Pair.B.ID() != 100 {
		t.Errorf("pair built from qubits (%d, %d), want (0, 100)", h.Pair.A.ID(), h.Pair.B.ID())
	}
	if math.Abs(h.Fidelity-0.99*0.98) > 1e-12 {
		t.Errorf("Fidelity == %v, want %v", h.Fidelity, 0.99*0.98)
	}
}

func TestECHPEmptyMemoryLeavesHostsUntouched(t *testing.T) {
	alice, bob := hostsWith(t, []float64{1}, nil)
	p := NewPhysicalLayer(PhysicalLayerOpts{})
	if _, err := p.ECHP(alice, bob); !errors.Is(err, ErrEmptyMemory) {
		t.Fatalf("ECHP error = %v, want ErrEmptyMemory", err)
	}
	if alice.Len() != 1 {
		t.Errorf("alice lost her qubit on a failed pairing")
	}
	if _, err := p.ECHP(alice, alice); !errors.Is(err, ErrEmptyMemory) {
		t.Errorf("self pairing with one qubit error = %v, want ErrEmptyMemory", err)
	}
}

func TestECHPLogsOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := NewPhysicalLayer(PhysicalLayerOpts{Logger: zap.New(core)})

	alice, bob := hostsWith(t, []float64{0.9, 0.95}, []float64{0.9, 0.96})
	if ok, _ := p.ECHP(alice, bob); !ok {
		t.Fatalf("expected success")
	}
	if ok, _ := p.ECHP(alice, bob); ok {
		t.Fatalf("expected failure")
	}
	if n := logs.FilterMessage("entanglement creation heralding protocol succeeded").Len(); n != 1 {
		t.Errorf("logged %d successes, want 1", n)
	}
	if n := logs.FilterMessage("entanglement creation heralding protocol failed").Len(); n != 1 {
		t.Errorf("logged %d failures, want 1", n)
	}
	if n := logs.FilterMessage("measured pair fidelity").Len(); n != 2 {
		t.Errorf("logged %d measurements, want 2", n)
	}
}

func TestECHPOnDemand(t *testing.T) {
	tcs := []struct {
		fa, fb float64
		eout   float64
	}{
		{1, 1, 0.9},
		{0.5, 1, 0.45},
		{0, 1, 0},
	}
	for _, tc := range tcs {
		alice, bob := hostsWith(t, []float64{tc.fa}, []float64{tc.fb})
		p := NewPhysicalLayer(PhysicalLayerOpts{})
		prob, err := p.ECHPOnDemand(alice, bob)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prob != tc.eout {
			t.Errorf("ECHPOnDemand(%v, %v) == %v, want %v", tc.fa, tc.fb, prob, tc.eout)
		}
		if alice.Len() != 1 || bob.Len() != 1 {
			t.Errorf("ECHPOnDemand(%v, %v) left memories of %d and %d qubits, want 1 and 1",
				tc.fa, tc.fb, alice.Len(), bob.Len())
		}
	}
}

func TestECHPOnDemandThenHerald(t *testing.T) {
	alice, bob := hostsWith(t, []float64{0.5, 1}, []float64{1})
	p := NewPhysicalLayer(PhysicalLayerOpts{})
	prob, err := p.ECHPOnDemand(alice, bob)
	if err != nil {
		t.Fatalf("ECHPOnDemand: %v", err)
	}
	if prob != 0.9 {
		t.Errorf("ECHPOnDemand == %v, want 0.9", prob)
	}
	if len(p.Qubits()) != 0 {
		t.Errorf("forecast recorded %d qubits, want 0", len(p.Qubits()))
	}

	// The forecast qubits are still there to be committed.
	ok, err := p.ECHP(alice, bob)
	if err != nil {
		t.Fatalf("ECHP after forecast: %v", err)
	}
	if !ok {
		t.Errorf("ECHP after forecast failed with perfect qubits")
	}
	if alice.Len() != 1 || bob.Len() != 0 {
		t.Errorf("memories hold %d and %d qubits after ECHP, want 1 and 0", alice.Len(), bob.Len())
	}

	if _, err := p.ECHPOnDemand(alice, bob); !errors.Is(err, ErrEmptyMemory) {
		t.Errorf("ECHPOnDemand on an empty host: got %v, want ErrEmptyMemory", err)
	}
	if alice.Len() != 1 {
		t.Errorf("failed forecast changed alice's memory to %d qubits", alice.Len())
	}
}

func TestHeraldOnDemandRate(t *testing.T) {
	const trials = 20000
	p := NewPhysicalLayer(PhysicalLayerOpts{Source: rand.NewPCG(11, 13)})
	alice := mustHost(t, 0, WithMemorySize(1))
	bob := mustHost(t, 1, WithMemorySize(1))
	successes := 0
	for i := 0; i < trials; i++ {
		if err := alice.AddQubit(mustQubit(t, 2*i, 1)); err != nil {
			t.Fatalf("bugged test setup: %v", err)
		}
		if err := bob.AddQubit(mustQubit(t, 2*i+1, 1)); err != nil {
			t.Fatalf("bugged test setup: %v", err)
		}
		h, err := p.HeraldOnDemand(alice, bob)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.Success {
			if h.Pair == nil {
				t.Fatalf("successful on-demand attempt without a pair")
			}
			successes++
		}
	}
	if rate := float64(successes) / trials; math.Abs(rate-0.9) > 0.015 {
		t.Errorf("on-demand success rate %v, want about 0.9", rate)
	}
}

func TestHeraldOnDemandReproducible(t *testing.T) {
	run := func() []bool {
		p := NewPhysicalLayer(PhysicalLayerOpts{Source: rand.NewPCG(1, 2)})
		var out []bool
		for i := 0; i < 50; i++ {
			alice, bob := hostsWith(t, []float64{0.8}, []float64{0.7})
			h, err := p.HeraldOnDemand(alice, bob)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			out = append(out, h.Success)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs with equal seeds diverge at attempt %d", i)
		}
	}
}

func TestECHPOnReplay(t *testing.T) {
	tcs := []struct {
		name      string
		fa, fb    []float64
		eSuccess  bool
		eAttempts int
		eLeft     int
	}{
		{
			name:      "first attempt succeeds",
			fa:        []float64{1},
			fb:        []float64{1},
			eSuccess:  true,
			eAttempts: 1,
			eLeft:     0,
		}, {
			// Top of memory is the last element.
			name:      "second attempt succeeds",
			fa:        []float64{1, 0.5},
			fb:        []float64{1, 0.5},
			eSuccess:  true,
			eAttempts: 2,
			eLeft:     0,
		}, {
			name:      "bounded by max attempts",
			fa:        []float64{1, 0.1, 0.1, 0.1},
			fb:        []float64{1, 0.1, 0.1, 0.1},
			eSuccess:  false,
			eAttempts: 3,
			eLeft:     1,
		}, {
			name:      "memory runs dry",
			fa:        []float64{0.1, 0.1},
			fb:        []float64{0.1},
			eSuccess:  false,
			eAttempts: 1,
			eLeft:     1,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			alice, bob := hostsWith(t, tc.fa, tc.fb)
			p := NewPhysicalLayer(PhysicalLayerOpts{})
			out, err := p.ECHPOnReplay(alice, bob)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Success != tc.eSuccess || out.Attempts != tc.eAttempts {
				t.Errorf("ECHPOnReplay() == (success %t, attempts %d), want (%t, %d)",
					out.Success, out.Attempts, tc.eSuccess, tc.eAttempts)
			}
			if out.Success && out.Pair == nil {
				t.Errorf("successful replay without a pair")
			}
			if alice.Len() != tc.eLeft {
				t.Errorf("alice holds %d qubits, want %d", alice.Len(), tc.eLeft)
			}
		})
	}

	alice, bob := hostsWith(t, nil, []float64{1})
	p := NewPhysicalLayer(PhysicalLayerOpts{})
	if _, err := p.ECHPOnReplay(alice, bob); !errors.Is(err, ErrEmptyMemory) {
		t.Errorf("replay with no qubits error = %v, want ErrEmptyMemory", err)
	}
}

func TestPhysicalLayerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	p := NewPhysicalLayer(PhysicalLayerOpts{Metrics: c})
	alice, bob := hostsWith(t, []float64{0.1, 1}, []float64{0.1, 1})
	p.ECHP(alice, bob)
	p.ECHP(alice, bob)
	if got := testutil.ToFloat64(c.Attempts.WithLabelValues(VariantECHP, metrics.OutcomeSuccess)); got != 1 {
		t.Errorf("successes == %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Attempts.WithLabelValues(VariantECHP, metrics.OutcomeFailure)); got != 1 {
		t.Errorf("failures == %v, want 1", got)
	}
}

// With fidelities drawn uniformly from [0, 1], ECHP succeeds with probability
// P(XY > 0.9) = 0.1 + 0.9 ln 0.9.
func TestECHPSuccessRateConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("long-running statistical test")
	}
	const trials = 200000
	want := 0.1 + 0.9*math.Log(0.9)

	uniform := distuv.Uniform{Min: 0, Max: 1, Src: rand.NewPCG(42, 1337)}
	p := NewPhysicalLayer(PhysicalLayerOpts{})
	alice := mustHost(t, 0, WithMemorySize(1))
	bob := mustHost(t, 1, WithMemorySize(1))
	successes := 0
	for i := 0; i < trials; i++ {
		if err := alice.AddQubit(mustQubit(t, 2*i, uniform.Rand())); err != nil {
			t.Fatalf("bugged test setup: %v", err)
		}
		if err := bob.AddQubit(mustQubit(t, 2*i+1, uniform.Rand())); err != nil {
			t.Fatalf("bugged test setup: %v", err)
		}
		ok, err := p.ECHP(alice, bob)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			successes++
		}
	}
	if rate := float64(successes) / trials; math.Abs(rate-want) > 8e-4 {
		t.Errorf("empirical success rate %v, want %v", rate, want)
	}
}
