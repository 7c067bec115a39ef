// bench.go runs a batch of entanglement attempts between two neighbouring hosts
// for each entry in the cartesian product of a collection of tuning
// parameters, e.g. protocol variant and initial fidelity range, and outputs a
// CSV of relevant statistics for each combination, e.g. empirical success rate.
package main

import (
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strings"
	"text/template"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/alan-christopher/quantumnet/quantumnet"
	"github.com/alan-christopher/quantumnet/quantumnet/config"
	"github.com/alan-christopher/quantumnet/quantumnet/logging"
	"github.com/alan-christopher/quantumnet/quantumnet/metrics"
)

var (
	variant = flag.StringSlice("variant", []string{quantumnet.VariantECHP},
		"Protocol variants to run: echp, on_demand or replay.")
	fMin   = flag.Float64Slice("fMin", []float64{0.9}, "Lower bound of initial qubit fidelities.")
	fMax   = flag.Float64Slice("fMax", []float64{1}, "Upper bound of initial qubit fidelities.")
	decay  = flag.Float64Slice("decay", []float64{0}, "Fidelity lost by stored qubits before each attempt.")
	trials = flag.IntSlice("trials", []int{10000}, "Attempts per experiment.")
	seed   = flag.IntSlice("seed", []int{42}, "Random seeds.")

	scenarioPath = flag.String("config", "", "Optional YAML scenario supplying host and logging settings.")
	dumpMetrics  = flag.Bool("metrics", false, "Write Prometheus metrics to stderr after the sweep.")
)

var (
	inputs  = []string{"variant", "fMin", "fMax", "decay", "trials", "seed"}
	columns = []string{"Variant", "FMin", "FMax", "Decay", "Trials", "Seed",
		"Attempts", "SuccessRate", "SuccessStdDev", "MeanFidelity", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Variant    string
	FMin, FMax float64
	Decay      float64
	Trials     int
	Seed       int

	// Fields corresponding to experiment results
	Attempts      int
	SuccessRate   float64
	SuccessStdDev float64
	MeanFidelity  float64
	Succeeded     bool
}

func main() {
	flag.Parse()
	base := config.Default()
	// Per-attempt protocol logs are info level; keep them out of the CSV run
	// unless a scenario asks for them.
	base.Logging.Level = "warn"
	if *scenarioPath != "" {
		s, err := config.Load(*scenarioPath)
		if err != nil {
			log.Fatalf("Loading scenario: %v", err)
		}
		base = s
	}
	logger := logging.New(logging.Config{Level: base.Logging.Level, Format: base.Logging.Format})
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		log.Fatalf("Registering metrics: %v", err)
	}

	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			Variant: args[inpIndex("variant")].(string),
			FMin:    args[inpIndex("fMin")].(float64),
			FMax:    args[inpIndex("fMax")].(float64),
			Decay:   args[inpIndex("decay")].(float64),
			Trials:  args[inpIndex("trials")].(int),
			Seed:    args[inpIndex("seed")].(int),
		}
		if err := bench(exp, base, logger, collector); err != nil {
			log.Printf("Benching %v: %v", exp, err)
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatalf("BUG: could not fill in line template: %v", err)
		}
	}, args)

	if *dumpMetrics {
		mfs, err := reg.Gather()
		if err != nil {
			log.Fatalf("Gathering metrics: %v", err)
		}
		for _, mf := range mfs {
			if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
				log.Fatalf("Writing metrics: %v", err)
			}
		}
	}
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(exp *Experiment, base *config.Scenario, logger *zap.Logger, collector *metrics.Collector) error {
	s := *base
	s.Topology = config.TopologyConfig{Name: quantumnet.TopologyLine, Args: []int{2}}
	s.Fidelity = config.FidelityRange{Min: exp.FMin, Max: exp.FMax}
	s.Seed = uint64(exp.Seed)
	s.Trials = exp.Trials
	n, err := s.BuildNetwork(logger, collector)
	if err != nil {
		return err
	}
	filler := s.NewFiller(rand.NewPCG(uint64(exp.Seed), 1))
	perAttempt := 1
	if exp.Variant == quantumnet.VariantReplay {
		perAttempt = quantumnet.DefaultMaxReplayAttempts
		if s.MaxReplayAttempts > 0 {
			perAttempt = s.MaxReplayAttempts
		}
	}

	var outcomes, fidelities []float64
	for i := 0; i < exp.Trials; i++ {
		for _, id := range []quantumnet.HostID{0, 1} {
			if _, err := filler.Fill(n, id, perAttempt); err != nil {
				return err
			}
			h, err := n.Host(id)
			if err != nil {
				return err
			}
			if err := h.DecayMemory(exp.Decay); err != nil {
				return err
			}
		}
		res, err := attempt(n, exp.Variant)
		if err != nil {
			return err
		}
		exp.Attempts += res.attempts
		outcomes = append(outcomes, boolToFloat(res.Success))
		fidelities = append(fidelities, res.Fidelity)
	}
	if len(outcomes) > 0 {
		exp.SuccessRate, exp.SuccessStdDev = stat.MeanStdDev(outcomes, nil)
		exp.MeanFidelity = stat.Mean(fidelities, nil)
	}
	exp.Succeeded = true
	return nil
}

type result struct {
	quantumnet.Heralding
	attempts int
}

func attempt(n *quantumnet.Network, variant string) (result, error) {
	alice, err := n.Host(0)
	if err != nil {
		return result{}, err
	}
	bob, err := n.Host(1)
	if err != nil {
		return result{}, err
	}
	p := n.Physical()
	switch variant {
	case quantumnet.VariantECHP:
		h, err := p.Herald(alice, bob)
		return result{h, 1}, err
	case quantumnet.VariantOnDemand:
		h, err := p.HeraldOnDemand(alice, bob)
		return result{h, 1}, err
	case quantumnet.VariantReplay:
		out, err := p.ECHPOnReplay(alice, bob)
		return result{out.Heralding, out.Attempts}, err
	}
	return result{}, fmt.Errorf("unknown variant %q", variant)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetStringSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
