package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/banshee-data/adcpqc/internal/adcp"
	"github.com/banshee-data/adcpqc/internal/fsutil"
	"github.com/banshee-data/adcpqc/internal/qcflag"
	"github.com/banshee-data/adcpqc/internal/seawater"
)

// DefaultConfigPath is the path to the canonical QC defaults file.
const DefaultConfigPath = "config/qc.defaults.hujson"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// QCConfig holds the screening thresholds and run options. Nil fields fall
// back to the built-in defaults through the Get* accessors, so partial
// configs are safe.
type QCConfig struct {
	EchoRange            *float64 `json:"ea_fishthresh,omitempty"`
	CorrelationMagnitude *float64 `json:"cmag_threshold,omitempty"`
	ErrorVelocity        *float64 `json:"error_velocity,omitempty"`
	HorizontalVelocity   *float64 `json:"horizontal_velocity,omitempty"`
	VerticalVelocity     *float64 `json:"vertical_velocity,omitempty"`
	Tilt                 *float64 `json:"tilt,omitempty"`
	SideLobeFraction     *float64 `json:"side_lobe_fraction,omitempty"`

	ReferenceLatitude *float64 `json:"reference_latitude,omitempty"`
	DepthMethod       *string  `json:"depth_method,omitempty"` // "gsw" or "unesco"
	QCSet             *int     `json:"qc_set,omitempty"`
	Workers           *int     `json:"workers,omitempty"`
	IgnorePriorFlags  *bool    `json:"ignore_prior_flags,omitempty"`

	// InstrumentClasses overrides thresholds per instrument model. Nil
	// selects DefaultInstrumentClasses; an empty list disables overrides.
	InstrumentClasses []InstrumentClass `json:"instrument_classes,omitempty"`
}

// InstrumentClass overrides thresholds for instruments whose model contains
// Match, compared case-insensitively.
type InstrumentClass struct {
	Match string `json:"match"`

	EchoRange            *float64 `json:"ea_fishthresh,omitempty"`
	CorrelationMagnitude *float64 `json:"cmag_threshold,omitempty"`
	ErrorVelocity        *float64 `json:"error_velocity,omitempty"`
	HorizontalVelocity   *float64 `json:"horizontal_velocity,omitempty"`
	VerticalVelocity     *float64 `json:"vertical_velocity,omitempty"`
	Tilt                 *float64 `json:"tilt,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// DefaultInstrumentClasses returns the built-in model table, most specific
// match first.
func DefaultInstrumentClasses() []InstrumentClass {
	return []InstrumentClass{
		{Match: "workhorse", CorrelationMagnitude: ptrFloat64(64), Tilt: ptrFloat64(50)},
		{Match: "sentinel v", CorrelationMagnitude: ptrFloat64(110)},
		{Match: "streampro", CorrelationMagnitude: ptrFloat64(110)},
		{Match: "signature", CorrelationMagnitude: ptrFloat64(190), Tilt: ptrFloat64(30)},
		{Match: "awac", CorrelationMagnitude: ptrFloat64(190), Tilt: ptrFloat64(30)},
	}
}

// DefaultQCConfig returns a config with every field set to its default.
func DefaultQCConfig() *QCConfig {
	th := adcp.DefaultThresholds()
	return &QCConfig{
		EchoRange:            ptrFloat64(th.EchoRange),
		CorrelationMagnitude: ptrFloat64(th.CorrelationMagnitude),
		ErrorVelocity:        ptrFloat64(th.ErrorVelocity),
		HorizontalVelocity:   ptrFloat64(th.HorizontalVelocity),
		VerticalVelocity:     ptrFloat64(th.VerticalVelocity),
		Tilt:                 ptrFloat64(th.Tilt),
		SideLobeFraction:     ptrFloat64(th.SideLobeFraction),
		ReferenceLatitude:    ptrFloat64(adcp.DefaultReferenceLatitude),
		DepthMethod:          ptrString(string(seawater.MethodGSW)),
		QCSet:                ptrInt(qcflag.DefaultSetID),
		Workers:              ptrInt(1),
		IgnorePriorFlags:     ptrBool(false),
		InstrumentClasses:    DefaultInstrumentClasses(),
	}
}

// LoadQCConfig loads a QCConfig from a JSON or HuJSON file. Comments and
// trailing commas are accepted; unknown keys are rejected.
func LoadQCConfig(fs fsutil.FileSystem, path string) (*QCConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" && ext != ".hujson" {
		return nil, fmt.Errorf("config file must have .json or .hujson extension, got %q", ext)
	}

	fileInfo, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseQCConfig(data)
}

// ParseQCConfig parses and validates config bytes.
func ParseQCConfig(data []byte) (*QCConfig, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &QCConfig{}
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *QCConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/adcpqc/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	var lastErr error
	for _, path := range candidates {
		cfg, err := LoadQCConfig(fsutil.OSFileSystem{}, path)
		if err == nil {
			return cfg
		}
		lastErr = err
	}
	panic(fmt.Sprintf("cannot load %s: %v", DefaultConfigPath, lastErr))
}

// Validate checks that the configuration values are valid.
func (c *QCConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"ea_fishthresh", c.EchoRange},
		{"cmag_threshold", c.CorrelationMagnitude},
		{"error_velocity", c.ErrorVelocity},
		{"horizontal_velocity", c.HorizontalVelocity},
		{"vertical_velocity", c.VerticalVelocity},
	}
	for _, p := range positive {
		if p.v != nil && !(*p.v > 0) {
			return fmt.Errorf("%s must be positive, got %v", p.name, *p.v)
		}
	}

	if c.Tilt != nil && !(*c.Tilt > 0 && *c.Tilt <= 90) {
		return fmt.Errorf("tilt must be in (0, 90] degrees, got %v", *c.Tilt)
	}
	if c.SideLobeFraction != nil && !(*c.SideLobeFraction >= 0 && *c.SideLobeFraction <= 1) {
		return fmt.Errorf("side_lobe_fraction must be between 0 and 1, got %v", *c.SideLobeFraction)
	}
	if c.ReferenceLatitude != nil && !(*c.ReferenceLatitude >= -90 && *c.ReferenceLatitude <= 90) {
		return fmt.Errorf("reference_latitude must be between -90 and 90, got %v", *c.ReferenceLatitude)
	}
	if c.DepthMethod != nil {
		if _, err := seawater.ParseMethod(*c.DepthMethod); err != nil {
			return fmt.Errorf("invalid depth_method: %w", err)
		}
	}
	if c.QCSet != nil {
		if _, err := qcflag.Lookup(*c.QCSet); err != nil {
			return fmt.Errorf("invalid qc_set: %w", err)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	for i, cls := range c.InstrumentClasses {
		if strings.TrimSpace(cls.Match) == "" {
			return fmt.Errorf("instrument_classes[%d]: match must not be empty", i)
		}
		for _, v := range []*float64{cls.EchoRange, cls.CorrelationMagnitude, cls.ErrorVelocity,
			cls.HorizontalVelocity, cls.VerticalVelocity} {
			if v != nil && !(*v > 0) {
				return fmt.Errorf("instrument_classes[%d] (%s): thresholds must be positive, got %v", i, cls.Match, *v)
			}
		}
		if cls.Tilt != nil && !(*cls.Tilt > 0 && *cls.Tilt <= 90) {
			return fmt.Errorf("instrument_classes[%d] (%s): tilt must be in (0, 90] degrees, got %v", i, cls.Match, *cls.Tilt)
		}
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func (c *QCConfig) GetEchoRange() float64 {
	return getFloat(c.EchoRange, adcp.DefaultThresholds().EchoRange)
}

func (c *QCConfig) GetCorrelationMagnitude() float64 {
	return getFloat(c.CorrelationMagnitude, adcp.DefaultThresholds().CorrelationMagnitude)
}

func (c *QCConfig) GetErrorVelocity() float64 {
	return getFloat(c.ErrorVelocity, adcp.DefaultThresholds().ErrorVelocity)
}

func (c *QCConfig) GetHorizontalVelocity() float64 {
	return getFloat(c.HorizontalVelocity, adcp.DefaultThresholds().HorizontalVelocity)
}

func (c *QCConfig) GetVerticalVelocity() float64 {
	return getFloat(c.VerticalVelocity, adcp.DefaultThresholds().VerticalVelocity)
}

func (c *QCConfig) GetTilt() float64 {
	return getFloat(c.Tilt, adcp.DefaultThresholds().Tilt)
}

func (c *QCConfig) GetSideLobeFraction() float64 {
	return getFloat(c.SideLobeFraction, adcp.DefaultThresholds().SideLobeFraction)
}

func (c *QCConfig) GetReferenceLatitude() float64 {
	return getFloat(c.ReferenceLatitude, adcp.DefaultReferenceLatitude)
}

// GetDepthMethod returns the pressure to depth method. Validate has already
// rejected unknown names.
func (c *QCConfig) GetDepthMethod() seawater.Method {
	if c.DepthMethod == nil {
		return seawater.MethodGSW
	}
	m, err := seawater.ParseMethod(*c.DepthMethod)
	if err != nil {
		return seawater.MethodGSW
	}
	return m
}

func (c *QCConfig) GetQCSet() int {
	if c.QCSet != nil {
		return *c.QCSet
	}
	return qcflag.DefaultSetID
}

func (c *QCConfig) GetWorkers() int {
	if c.Workers != nil && *c.Workers > 0 {
		return *c.Workers
	}
	return 1
}

func (c *QCConfig) GetIgnorePriorFlags() bool {
	if c.IgnorePriorFlags != nil {
		return *c.IgnorePriorFlags
	}
	return false
}

// GetInstrumentClasses returns the configured class table, or the built-in
// one when none is configured.
func (c *QCConfig) GetInstrumentClasses() []InstrumentClass {
	if c.InstrumentClasses == nil {
		return DefaultInstrumentClasses()
	}
	return c.InstrumentClasses
}

// Class returns the first instrument class matching model, or nil.
func (c *QCConfig) Class(model string) *InstrumentClass {
	model = strings.ToLower(model)
	classes := c.GetInstrumentClasses()
	for i := range classes {
		if strings.Contains(model, strings.ToLower(strings.TrimSpace(classes[i].Match))) {
			return &classes[i]
		}
	}
	return nil
}

// Thresholds resolves the thresholds for one instrument: the global values
// with any matching class overrides applied.
func (c *QCConfig) Thresholds(meta adcp.Metadata) adcp.Thresholds {
	th := adcp.Thresholds{
		EchoRange:            c.GetEchoRange(),
		CorrelationMagnitude: c.GetCorrelationMagnitude(),
		ErrorVelocity:        c.GetErrorVelocity(),
		HorizontalVelocity:   c.GetHorizontalVelocity(),
		VerticalVelocity:     c.GetVerticalVelocity(),
		Tilt:                 c.GetTilt(),
		SideLobeFraction:     c.GetSideLobeFraction(),
	}
	cls := c.Class(meta.InstrumentModel)
	if cls == nil {
		return th
	}
	th.EchoRange = getFloat(cls.EchoRange, th.EchoRange)
	th.CorrelationMagnitude = getFloat(cls.CorrelationMagnitude, th.CorrelationMagnitude)
	th.ErrorVelocity = getFloat(cls.ErrorVelocity, th.ErrorVelocity)
	th.HorizontalVelocity = getFloat(cls.HorizontalVelocity, th.HorizontalVelocity)
	th.VerticalVelocity = getFloat(cls.VerticalVelocity, th.VerticalVelocity)
	th.Tilt = getFloat(cls.Tilt, th.Tilt)
	return th
}

// Options builds the screening options.
func (c *QCConfig) Options() (adcp.Options, error) {
	set, err := qcflag.Lookup(c.GetQCSet())
	if err != nil {
		return adcp.Options{}, err
	}
	return adcp.Options{
		FlagSet:           set,
		ReferenceLatitude: c.GetReferenceLatitude(),
		DepthMethod:       c.GetDepthMethod(),
		IgnorePriorFlags:  c.GetIgnorePriorFlags(),
	}, nil
}
