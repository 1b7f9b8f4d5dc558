// Package catalog holds the crop knowledge base: per-crop optimal ranges and
// tolerances loaded once at startup and immutable thereafter.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// ErrCropNotFound is returned by Get for crops absent from the catalog.
var ErrCropNotFound = errors.New("crop not found in catalog")

// ConfigError reports an invalid or incomplete catalog record. It is fatal
// at startup and never recovered.
type ConfigError struct {
	Crop   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Crop == "" {
		return fmt.Sprintf("catalog: %s", e.Reason)
	}
	return fmt.Sprintf("catalog: crop %q field %q: %s", e.Crop, e.Field, e.Reason)
}

// FactorRange is the acceptable band for one factor: an optimal value and
// the tolerance (half-width) around it. Tolerance is always > 0 after load.
type FactorRange struct {
	Optimal   float64 `json:"optimal" yaml:"optimal"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
}

// CropProfile is the immutable per-crop reference record.
type CropProfile struct {
	Name     string          `json:"name"`
	Category domain.Category `json:"category"`

	Temperature FactorRange `json:"temperature"`
	Moisture    FactorRange `json:"moisture"`
	Humidity    FactorRange `json:"humidity"`
	NDVI        FactorRange `json:"ndvi"`
	Rainfall    FactorRange `json:"rainfall"`
}

// Range returns the acceptable band for the given factor.
func (p CropProfile) Range(f domain.Factor) FactorRange {
	switch f {
	case domain.FactorTemperature:
		return p.Temperature
	case domain.FactorMoisture:
		return p.Moisture
	case domain.FactorHumidity:
		return p.Humidity
	case domain.FactorNDVI:
		return p.NDVI
	case domain.FactorRainfall:
		return p.Rainfall
	default:
		return FactorRange{}
	}
}

// Catalog is the loaded crop knowledge base. Safe for concurrent reads;
// never mutated after Load.
type Catalog struct {
	profiles    map[string]CropProfile
	names       []string
	fingerprint string
}

// record mirrors one raw catalog entry. Pointer fields distinguish a missing
// field from an explicit zero.
type record struct {
	Category string `yaml:"category"`

	OptimalTemp       *float64 `yaml:"optimal_temp"`
	TempTolerance     *float64 `yaml:"temp_tolerance"`
	OptimalMoisture   *float64 `yaml:"optimal_moisture"`
	MoistureTolerance *float64 `yaml:"moisture_tolerance"`
	OptimalHumidity   *float64 `yaml:"optimal_humidity"`
	HumidityTolerance *float64 `yaml:"humidity_tolerance"`
	OptimalNDVI       *float64 `yaml:"optimal_ndvi"`
	NDVITolerance     *float64 `yaml:"ndvi_tolerance"`
	OptimalRainfall   *float64 `yaml:"optimal_rainfall"`
	RainfallTolerance *float64 `yaml:"rainfall_tolerance"`
}

// Load reads and validates a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Parse(data)
}

// Parse validates a raw YAML catalog: a mapping from crop name to a record
// with a category plus optimal_<factor> and <factor>_tolerance fields.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]record
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("parse catalog: %v", err)}
	}
	if len(raw) == 0 {
		return nil, &ConfigError{Reason: "catalog contains no crops"}
	}

	profiles := make(map[string]CropProfile, len(raw))
	names := make([]string, 0, len(raw))
	for name, rec := range raw {
		profile, err := buildProfile(name, rec)
		if err != nil {
			return nil, err
		}
		profiles[name] = profile
		names = append(names, name)
	}
	sort.Strings(names)

	return &Catalog{
		profiles:    profiles,
		names:       names,
		fingerprint: fingerprint(names, profiles),
	}, nil
}

func buildProfile(name string, rec record) (CropProfile, error) {
	if rec.Category == "" {
		return CropProfile{}, &ConfigError{Crop: name, Field: "category", Reason: "missing required field"}
	}

	fields := []struct {
		optName string
		tolName string
		opt     *float64
		tol     *float64
	}{
		{"optimal_temp", "temp_tolerance", rec.OptimalTemp, rec.TempTolerance},
		{"optimal_moisture", "moisture_tolerance", rec.OptimalMoisture, rec.MoistureTolerance},
		{"optimal_humidity", "humidity_tolerance", rec.OptimalHumidity, rec.HumidityTolerance},
		{"optimal_ndvi", "ndvi_tolerance", rec.OptimalNDVI, rec.NDVITolerance},
		{"optimal_rainfall", "rainfall_tolerance", rec.OptimalRainfall, rec.RainfallTolerance},
	}

	profile := CropProfile{Name: name, Category: domain.Category(rec.Category)}
	dsts := []*FactorRange{
		&profile.Temperature, &profile.Moisture, &profile.Humidity, &profile.NDVI, &profile.Rainfall,
	}
	for i, f := range fields {
		if f.opt == nil {
			return CropProfile{}, &ConfigError{Crop: name, Field: f.optName, Reason: "missing required field"}
		}
		if f.tol == nil {
			return CropProfile{}, &ConfigError{Crop: name, Field: f.tolName, Reason: "missing required field"}
		}
		if *f.tol <= 0 {
			return CropProfile{}, &ConfigError{Crop: name, Field: f.tolName, Reason: fmt.Sprintf("tolerance must be > 0, got %g", *f.tol)}
		}
		dsts[i].Optimal = *f.opt
		dsts[i].Tolerance = *f.tol
	}
	return profile, nil
}

// Get returns the profile for a crop, or ErrCropNotFound.
func (c *Catalog) Get(name string) (CropProfile, error) {
	profile, ok := c.profiles[name]
	if !ok {
		return CropProfile{}, fmt.Errorf("%w: %q", ErrCropNotFound, name)
	}
	return profile, nil
}

// Names returns all crop names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of crops in the catalog.
func (c *Catalog) Len() int { return len(c.names) }

// Fingerprint returns a short deterministic hash over the catalog contents.
// Model bundles are stamped with it so a bundle trained against a different
// crop set can be detected at load time.
func (c *Catalog) Fingerprint() string { return c.fingerprint }

// fingerprint hashes the sorted profiles. Iteration follows the sorted name
// slice so the hash is stable across processes.
func fingerprint(names []string, profiles map[string]CropProfile) string {
	h := sha256.New()
	for _, name := range names {
		p := profiles[name]
		fmt.Fprintf(h, "%s|%s", name, p.Category)
		for _, f := range domain.Factors {
			r := p.Range(f)
			fmt.Fprintf(h, "|%g|%g", r.Optimal, r.Tolerance)
		}
		fmt.Fprint(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
