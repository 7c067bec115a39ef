package main

import (
	"math"
	"testing"

	"github.com/alan-christopher/quantumnet/quantumnet"
	"github.com/alan-christopher/quantumnet/quantumnet/config"
	"github.com/alan-christopher/quantumnet/quantumnet/logging"
)

func TestApplyCartesian(t *testing.T) {
	var got [][]interface{}
	applyCartesian(func(x []interface{}) {
		got = append(got, x)
	}, [][]interface{}{{1, 2}, {"a"}, {0.5, 0.25, 0.125}})
	if len(got) != 6 {
		t.Fatalf("visited %d combinations, want 6", len(got))
	}
	seen := make(map[[3]interface{}]bool)
	for _, x := range got {
		if len(x) != 3 {
			t.Fatalf("combination %v has %d elements, want 3", x, len(x))
		}
		seen[[3]interface{}{x[0], x[1], x[2]}] = true
	}
	if len(seen) != 6 {
		t.Errorf("combinations repeat: %v", got)
	}
}

func TestBench(t *testing.T) {
	tcs := []struct {
		variant string
		fMin    float64
		eRate   float64
	}{
		{quantumnet.VariantECHP, 1, 1},
		{quantumnet.VariantECHP, 0.5, 0},
		{quantumnet.VariantReplay, 1, 1},
		{quantumnet.VariantOnDemand, 1, 0.9},
	}
	for _, tc := range tcs {
		t.Run(tc.variant, func(t *testing.T) {
			exp := &Experiment{Variant: tc.variant, FMin: tc.fMin, FMax: tc.fMin, Trials: 2000, Seed: 3}
			if err := bench(exp, config.Default(), logging.Noop(), nil); err != nil {
				t.Fatalf("bench: %v", err)
			}
			if !exp.Succeeded {
				t.Fatalf("experiment not marked as succeeded")
			}
			if math.Abs(exp.SuccessRate-tc.eRate) > 0.03 {
				t.Errorf("SuccessRate == %v, want about %v", exp.SuccessRate, tc.eRate)
			}
		})
	}

	exp := &Experiment{Variant: "teleport", FMin: 1, FMax: 1, Trials: 1, Seed: 1}
	if err := bench(exp, config.Default(), logging.Noop(), nil); err == nil {
		t.Errorf("unknown variant did not fail")
	}
}
