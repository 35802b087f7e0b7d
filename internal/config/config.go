// Package config loads and hot-reloads the traffic control plane's
// configuration surface (spec §6). Values are read from a YAML file,
// overlaid with a .env file, then overridden by TRAFFICCTL_* environment
// variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the authoritative configuration surface (spec §6 table).
type Config struct {
	Density    DensityConfig    `yaml:"density"`
	Safety     SafetyConfig     `yaml:"safety"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Agent      AgentConfig      `yaml:"agent"`
	Detection  DetectionConfig  `yaml:"detection"`
	Prediction PredictionConfig `yaml:"prediction"`
	Network    NetworkConfig    `yaml:"network"`

	DataDir    string `yaml:"data_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// RoadConfig is one static road entry in the network topology.
type RoadConfig struct {
	ID     string  `yaml:"id"`
	Length float64 `yaml:"length_m"`
	Lanes  int     `yaml:"lanes"`
}

// JunctionConfig is one static junction entry: which road feeds each
// compass direction ("N"/"E"/"S"/"W" keys, matching models.Direction).
type JunctionConfig struct {
	ID    string            `yaml:"id"`
	Roads map[string]string `yaml:"roads"`
}

// EdgeConfig is one directed junction-to-junction edge used by incident
// inference's reachability search.
type EdgeConfig struct {
	From          string `yaml:"from"`
	To            string `yaml:"to"`
	Direction     string `yaml:"direction"`
	TravelTimeSec int    `yaml:"travel_time_s"`
}

// NetworkConfig is the static road/junction topology the Density
// Tracker and the signal-actuator/junction-graph adapters are seeded
// from (spec §9's capability adapters; no real topology ships with the
// distilled spec, so Default() seeds a minimal two-junction network
// just large enough to exercise every component end to end).
type NetworkConfig struct {
	Roads     []RoadConfig     `yaml:"roads"`
	Junctions []JunctionConfig `yaml:"junctions"`
	Edges     []EdgeConfig     `yaml:"edges"`
}

type DensityConfig struct {
	RetentionSeconds int `yaml:"retention_seconds"`
	Thresholds       struct {
		LowVehicles    int     `yaml:"low_vehicles"`
		MediumVehicles int     `yaml:"medium_vehicles"`
		LowScore       float64 `yaml:"low_score"`
		MediumScore    float64 `yaml:"medium_score"`
	} `yaml:"thresholds"`
	VehicleSpacePx float64 `yaml:"vehicle_space_px"`
}

// FailsafePattern is the signal pattern the safety kernel forces on
// FAIL_SAFE entry (open question resolved in SPEC_FULL.md §3).
type FailsafePattern string

const (
	FailsafeAllRed      FailsafePattern = "ALL_RED"
	FailsafeBlinkYellow FailsafePattern = "BLINK_YELLOW"
)

type SafetyConfig struct {
	MinRedTimeSec    int             `yaml:"min_red_time_s"`
	MinGreenTimeSec  int             `yaml:"min_green_time_s"`
	MaxRedTimeSec    int             `yaml:"max_red_time_s"`
	FailsafePattern  FailsafePattern `yaml:"failsafe_pattern"`
	MaxTransitionLog int             `yaml:"max_transition_log"`
}

type WatchdogConfig struct {
	IntervalSec       int `yaml:"interval_s"`
	MaxAgentLagSec    int `yaml:"max_agent_lag_s"`
	MaxActuatorLagSec int `yaml:"max_actuator_lag_s"`
	CheckBudgetMS     int `yaml:"check_budget_ms"`
}

type AgentConfig struct {
	LoopIntervalSec int    `yaml:"loop_interval_s"`
	Strategy        string `yaml:"strategy"` // RL | RULE_BASED | MANUAL
	MaxDryTicks     int    `yaml:"max_dry_ticks"`
}

type DetectionConfig struct {
	BufferSize      int `yaml:"buffer_size"`
	FlushIntervalS  int `yaml:"flush_interval_s"`
	RetentionHours  int `yaml:"retention_hours"`
}

type PredictionConfig struct {
	Algorithm           string  `yaml:"algorithm"` // MA | LINEAR | EXP | NN | RL
	BroadcastIntervalS  int     `yaml:"broadcast_interval_s"`
	AlertCooldownS      int     `yaml:"alert_cooldown_s"`
	Alpha               float64 `yaml:"alpha"`
	Beta                float64 `yaml:"beta"`
	MovingAverageWindow int     `yaml:"moving_average_window"`
}

// Default returns the configuration with every default named in spec §6.
func Default() *Config {
	c := &Config{
		DataDir:     "/var/lib/trafficctl",
		MetricsAddr: ":9090",
	}
	c.Density.RetentionSeconds = 600
	c.Density.Thresholds.LowVehicles = 5
	c.Density.Thresholds.MediumVehicles = 12
	c.Density.Thresholds.LowScore = 40
	c.Density.Thresholds.MediumScore = 70
	c.Density.VehicleSpacePx = 30

	c.Safety.MinRedTimeSec = 2
	c.Safety.MinGreenTimeSec = 10
	c.Safety.MaxRedTimeSec = 120
	c.Safety.FailsafePattern = FailsafeAllRed
	c.Safety.MaxTransitionLog = 1024

	c.Watchdog.IntervalSec = 2
	c.Watchdog.MaxAgentLagSec = 5
	c.Watchdog.MaxActuatorLagSec = 3
	c.Watchdog.CheckBudgetMS = 500

	c.Agent.LoopIntervalSec = 1
	c.Agent.Strategy = "RULE_BASED"
	c.Agent.MaxDryTicks = 10

	c.Detection.BufferSize = 100
	c.Detection.FlushIntervalS = 5
	c.Detection.RetentionHours = 24

	c.Prediction.Algorithm = "EXP"
	c.Prediction.BroadcastIntervalS = 30
	c.Prediction.AlertCooldownS = 120
	c.Prediction.Alpha = 0.3
	c.Prediction.Beta = 0.1
	c.Prediction.MovingAverageWindow = 30

	c.Network = defaultNetwork()

	return c
}

// defaultNetwork seeds a small two-junction network (one shared road)
// so a fresh install has something to run the full pipeline against
// before an operator supplies a real topology file.
func defaultNetwork() NetworkConfig {
	return NetworkConfig{
		Roads: []RoadConfig{
			{ID: "R-MAIN-EW", Length: 400, Lanes: 2},
			{ID: "R-MAIN-NS", Length: 400, Lanes: 2},
			{ID: "R-SPUR-EW", Length: 250, Lanes: 1},
		},
		Junctions: []JunctionConfig{
			{ID: "J-1", Roads: map[string]string{"N": "R-MAIN-NS", "S": "R-MAIN-NS", "E": "R-MAIN-EW", "W": "R-MAIN-EW"}},
			{ID: "J-2", Roads: map[string]string{"E": "R-SPUR-EW", "W": "R-MAIN-EW"}},
		},
		Edges: []EdgeConfig{
			{From: "J-1", To: "J-2", Direction: "E", TravelTimeSec: 60},
			{From: "J-2", To: "J-1", Direction: "W", TravelTimeSec: 60},
		},
	}
}

// Load reads the YAML file at path (if it exists), overlays a .env file
// from the current working directory, then applies TRAFFICCTL_*
// environment variable overrides on top of Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load() // optional .env overlay; absence is not an error

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(c *Config) {
	overrideInt(&c.Density.RetentionSeconds, "TRAFFICCTL_DENSITY_RETENTION_SECONDS")
	overrideInt(&c.Safety.MinRedTimeSec, "TRAFFICCTL_SAFETY_MIN_RED_TIME_S")
	overrideInt(&c.Safety.MinGreenTimeSec, "TRAFFICCTL_SAFETY_MIN_GREEN_TIME_S")
	overrideInt(&c.Watchdog.IntervalSec, "TRAFFICCTL_WATCHDOG_INTERVAL_S")
	overrideInt(&c.Watchdog.MaxAgentLagSec, "TRAFFICCTL_WATCHDOG_MAX_AGENT_LAG_S")
	overrideInt(&c.Agent.LoopIntervalSec, "TRAFFICCTL_AGENT_LOOP_INTERVAL_S")
	overrideString(&c.Agent.Strategy, "TRAFFICCTL_AGENT_STRATEGY")
	overrideInt(&c.Detection.BufferSize, "TRAFFICCTL_DETECTION_BUFFER_SIZE")
	overrideInt(&c.Detection.RetentionHours, "TRAFFICCTL_DETECTION_RETENTION_HOURS")
	overrideString(&c.Prediction.Algorithm, "TRAFFICCTL_PREDICTION_ALGORITHM")
	overrideInt(&c.Prediction.AlertCooldownS, "TRAFFICCTL_PREDICTION_ALERT_COOLDOWN_S")
	overrideString(&c.DataDir, "TRAFFICCTL_DATA_DIR")
	overrideString(&c.MetricsAddr, "TRAFFICCTL_METRICS_ADDR")
}

func overrideInt(dst *int, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func overrideString(dst *string, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	*dst = strings.TrimSpace(v)
}

// DetectionFlushInterval returns the configured flush interval as a
// time.Duration.
func (c *Config) DetectionFlushInterval() time.Duration {
	return time.Duration(c.Detection.FlushIntervalS) * time.Second
}

// DetectionRetention returns the configured retention window as a
// time.Duration.
func (c *Config) DetectionRetention() time.Duration {
	return time.Duration(c.Detection.RetentionHours) * time.Hour
}

// WatchdogInterval returns the configured watchdog interval as a
// time.Duration.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Watchdog.IntervalSec) * time.Second
}

// AgentLoopInterval returns the configured agent loop period as a
// time.Duration.
func (c *Config) AgentLoopInterval() time.Duration {
	return time.Duration(c.Agent.LoopIntervalSec) * time.Second
}

// PredictionBroadcastInterval returns the configured broadcast period.
func (c *Config) PredictionBroadcastInterval() time.Duration {
	return time.Duration(c.Prediction.BroadcastIntervalS) * time.Second
}

// AlertCooldown returns the configured alert dedup cooldown.
func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.Prediction.AlertCooldownS) * time.Second
}
