// Package registry is the explicit service registry: it constructs
// every subsystem, wires them together through their capability
// interfaces, and starts/stops the independent periodic tasks named in
// spec §5's scheduling model. Grounded on cmd/pulse/main.go's runServer()
// construct-wire-start ordering, generalized from "one monitoring
// system" to this domain's eight components.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/trafficctl/control-plane/internal/agent"
	"github.com/trafficctl/control-plane/internal/config"
	"github.com/trafficctl/control-plane/internal/density"
	"github.com/trafficctl/control-plane/internal/detection"
	"github.com/trafficctl/control-plane/internal/eventbus"
	"github.com/trafficctl/control-plane/internal/inference"
	"github.com/trafficctl/control-plane/internal/metricsexport"
	"github.com/trafficctl/control-plane/internal/models"
	"github.com/trafficctl/control-plane/internal/persistence"
	"github.com/trafficctl/control-plane/internal/prediction"
	"github.com/trafficctl/control-plane/internal/safety"
	"github.com/trafficctl/control-plane/internal/topology"
)

// metricsSyncInterval is how often the registry pulls component
// statistics into the Prometheus collectors.
const metricsSyncInterval = 5 * time.Second

// Registry holds every constructed subsystem. Fields are exported so
// cmd/trafficctl (and tests) can reach into individual components
// without the registry growing a bespoke accessor per field.
type Registry struct {
	cfg *config.Config
	log zerolog.Logger

	Bus   *eventbus.Bus
	WSHub *eventbus.WebSocketHub

	Network *topology.Network
	Density *density.Tracker

	ConflictValidator *safety.ConflictValidator
	ModeManager       *safety.ModeManager
	OverrideManager   *safety.OverrideManager
	Watchdog          *safety.Watchdog

	DetectionLogger   *detection.Logger
	ViolationDetector *detection.ViolationDetector

	PredictionEngine *prediction.Engine
	AlertGenerator   *prediction.AlertGenerator
	Broadcaster      *prediction.Broadcaster

	Actor     *agent.Actor
	AgentLoop *agent.Loop

	Inference *inference.Engine
	Store     *persistence.Store

	Metrics    *metricsexport.Collectors
	metricsReg *prometheus.Registry

	group  *errgroup.Group
	cancel context.CancelFunc

	// lastXxx track the cumulative counters last observed by pushMetrics,
	// since Actor.Statistics()/DetectionLogger.Statistics() report
	// lifetime totals but the Prometheus counters must only ever be
	// incremented by what's new since the last sync tick.
	lastActionsExecuted   int64
	lastActionsRejected   int64
	lastDetectionFlushes  int64
	lastDetectionSinkTrips int64
}

// Build constructs every subsystem and wires it to its collaborators,
// but starts nothing — Start does that. Errors here are always
// construction failures (bad data dir, unreadable schema).
func Build(cfg *config.Config, log zerolog.Logger) (*Registry, error) {
	now := time.Now()

	store, err := persistence.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("registry: open persistence store: %w", err)
	}

	bus := eventbus.New()
	wsHub := eventbus.NewWebSocketHub(bus, nil)

	net := topology.BuildFromConfig(cfg.Network, now)

	thresholds := density.Thresholds{
		LowVehicles:    cfg.Density.Thresholds.LowVehicles,
		MediumVehicles: cfg.Density.Thresholds.MediumVehicles,
		LowScore:       cfg.Density.Thresholds.LowScore,
		MediumScore:    cfg.Density.Thresholds.MediumScore,
		VehicleSpacePx: cfg.Density.VehicleSpacePx,
	}
	tracker := density.New(thresholds, cfg.Density.RetentionSeconds)
	tracker.InitializeRoads(net.Roads(), net.JunctionModels())

	validator := safety.NewConflictValidator(cfg.Safety.MinRedTimeSec, cfg.Safety.MinGreenTimeSec, cfg.Safety.MaxRedTimeSec)
	modes := safety.NewModeManager(cfg.Safety.MaxTransitionLog)
	overrides := safety.NewOverrideManager(net)

	detectionLogger := detection.New(detection.Config{
		BufferSize:     cfg.Detection.BufferSize,
		FlushInterval:  cfg.DetectionFlushInterval(),
		RetentionHours: cfg.Detection.RetentionHours,
	}, store, bus, log)
	violationDetector := detection.NewViolationDetector(bus)
	detectionLogger.EnableViolationDetection(violationDetector, store, net.CurrentSignals)

	predictionEngine := prediction.NewEngine(prediction.Config{
		Algorithm:           cfg.Prediction.Algorithm,
		Alpha:               cfg.Prediction.Alpha,
		Beta:                cfg.Prediction.Beta,
		MovingAverageWindow: cfg.Prediction.MovingAverageWindow,
	}, tracker)
	alertGenerator := prediction.NewAlertGenerator(cfg.AlertCooldown())
	broadcaster := prediction.NewBroadcaster(predictionEngine, alertGenerator, bus, cfg.PredictionBroadcastInterval(), roadIDsOf(net))

	actor := agent.NewActor(net, validator, overrides, bus, log)
	strategy := selectStrategy(cfg.Agent.Strategy)
	perceive := perceiveFunc(tracker, net)
	agentLoop := agent.NewLoop(cfg.AgentLoopInterval(), strategy, perceive, actor, store, bus, cfg.Agent.MaxDryTicks, log)

	watchdogCfg := safety.WatchdogConfig{
		Interval:          cfg.WatchdogInterval(),
		MaxAgentLag:       time.Duration(cfg.Watchdog.MaxAgentLagSec) * time.Second,
		MaxActuatorLag:    time.Duration(cfg.Watchdog.MaxActuatorLagSec) * time.Second,
		CheckBudget:       time.Duration(cfg.Watchdog.CheckBudgetMS) * time.Millisecond,
		EmergencyGrace:    safety.DefaultWatchdogConfig().EmergencyGrace,
		FullJunctionGrace: safety.DefaultWatchdogConfig().FullJunctionGrace,
	}
	watchdog := safety.NewWatchdog(watchdogCfg, modes, validator, net, agentLoop, overrides, net.Junctions, net.CurrentSignals)

	inferenceEngine := inference.NewEngine(inference.DefaultConfig(), store, net)

	metrics, metricsReg := metricsexport.New()

	return &Registry{
		cfg: cfg, log: log,
		Bus: bus, WSHub: wsHub,
		Network: net, Density: tracker,
		ConflictValidator: validator, ModeManager: modes, OverrideManager: overrides, Watchdog: watchdog,
		DetectionLogger: detectionLogger, ViolationDetector: violationDetector,
		PredictionEngine: predictionEngine, AlertGenerator: alertGenerator, Broadcaster: broadcaster,
		Actor: actor, AgentLoop: agentLoop,
		Inference: inferenceEngine, Store: store,
		Metrics: metrics, metricsReg: metricsReg,
	}, nil
}

func roadIDsOf(net *topology.Network) func() []string {
	return func() []string {
		roads := net.Roads()
		ids := make([]string, len(roads))
		for i, r := range roads {
			ids[i] = r.ID
		}
		return ids
	}
}

func perceiveFunc(tracker *density.Tracker, net *topology.Network) agent.PerceiveFunc {
	return func(now time.Time) agent.PerceivedState {
		junctionIDs := net.Junctions()
		junctions := make(map[string]models.JunctionDensity, len(junctionIDs))
		signals := make(map[string]models.JunctionSignals, len(junctionIDs))
		for _, id := range junctionIDs {
			if jd, ok := tracker.GetJunctionDensity(id); ok {
				junctions[id] = jd
			}
			if s, ok := net.CurrentSignals(id); ok {
				signals[id] = s
			}
		}
		return agent.PerceivedState{Now: now, Junctions: junctions, Signals: signals}
	}
}

func selectStrategy(name string) agent.Strategy {
	switch name {
	case agent.StrategyRL:
		// No RL training/inference code ships with this repo (spec
		// Non-goals); RLStrategy degrades to pure density ranking when
		// its estimator is nil.
		return agent.NewRLStrategy(0, nil)
	case agent.StrategyManual:
		return agent.ManualStrategy{}
	default:
		return agent.NewRuleBasedStrategy(0)
	}
}

// Start launches the detection flusher, prediction broadcaster, watchdog
// and metrics sync under a single errgroup, starts the /metrics server and
// the agent loop with the group's context, and returns immediately; Stop
// cancels the tasks and waits for the group to return.
func (r *Registry) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	r.group = group

	// The websocket hub's broadcast loop runs for the process lifetime —
	// it drains a channel fed by an unconditional bus subscription, not a
	// context, so it is not part of the supervised errgroup (Stop would
	// otherwise block forever waiting for it to return).
	go r.WSHub.Run()

	group.Go(func() error { r.DetectionLogger.Run(groupCtx); return nil })
	group.Go(func() error { r.Broadcaster.Run(groupCtx); return nil })
	group.Go(func() error { r.Watchdog.Run(groupCtx); return nil })
	group.Go(func() error { r.syncMetrics(groupCtx); return nil })

	metricsexport.Serve(groupCtx, r.cfg.MetricsAddr, r.metricsReg)

	r.AgentLoop.Start(groupCtx)

	r.log.Info().Msg("registry: all subsystems started")
}

// Stop tears down every subsystem in the reverse order Start brought
// them up, matching cmd/pulse/main.go's explicit shutdown sequence.
func (r *Registry) Stop() {
	r.AgentLoop.Stop()
	r.DetectionLogger.Stop()

	if r.cancel != nil {
		r.cancel()
	}
	if r.group != nil {
		_ = r.group.Wait()
	}

	if err := r.Store.Close(); err != nil {
		r.log.Warn().Err(err).Msg("registry: error closing persistence store")
	}

	r.log.Info().Msg("registry: all subsystems stopped")
}

func (r *Registry) syncMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pushMetrics()
		}
	}
}

func (r *Registry) pushMetrics() {
	actionStats := r.Actor.Statistics()
	r.Metrics.ActionsExecuted.Add(float64(actionStats.Executed - r.lastActionsExecuted))
	r.Metrics.ActionsRejected.Add(float64(actionStats.Rejected - r.lastActionsRejected))
	r.lastActionsExecuted = actionStats.Executed
	r.lastActionsRejected = actionStats.Rejected

	detStats := r.DetectionLogger.Statistics()
	r.Metrics.DetectionBufferLen.Set(float64(detStats.BufferSize))
	r.Metrics.DetectionFlushes.Add(float64(detStats.TotalFlushes - r.lastDetectionFlushes))
	r.Metrics.DetectionFailures.Add(float64(detStats.SinkTotalTrips - r.lastDetectionSinkTrips))
	r.lastDetectionFlushes = detStats.TotalFlushes
	r.lastDetectionSinkTrips = detStats.SinkTotalTrips

	health := r.Watchdog.GetHealthStatus()
	if health.Healthy {
		r.Metrics.WatchdogHealthy.Set(1)
	} else {
		r.Metrics.WatchdogHealthy.Set(0)
	}

	for _, m := range []models.Mode{models.ModeNormal, models.ModeEmergency, models.ModeIncident, models.ModeFailSafe} {
		if m == r.ModeManager.GetCurrentMode() {
			r.Metrics.SystemMode.WithLabelValues(string(m)).Set(1)
		} else {
			r.Metrics.SystemMode.WithLabelValues(string(m)).Set(0)
		}
	}
}
