package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Bundle is the atomic unit of persisted learned-model state: regression
// parameters, standardization parameters, categorical code tables, the exact
// feature column order, and the catalog fingerprint at training time. It is
// produced whole by Train, saved and loaded whole, and read-only during
// inference.
type Bundle struct {
	SchemaVersion      int       `json:"schema_version"`
	CatalogFingerprint string    `json:"catalog_fingerprint"`
	FeatureNames       []string  `json:"feature_names"`
	Encoder            Encoder   `json:"encoder"`
	Scaler             Scaler    `json:"scaler"`
	Forest             *Forest   `json:"forest"`
	TrainedAt          time.Time `json:"trained_at"`
	Metrics            Metrics   `json:"metrics"`
}

// bundleHolder swaps the active bundle atomically so concurrent predictions
// never observe a half-updated model.
type bundleHolder struct {
	ptr atomic.Pointer[Bundle]
}

func (h *bundleHolder) load() *Bundle   { return h.ptr.Load() }
func (h *bundleHolder) store(b *Bundle) { h.ptr.Store(b) }

// Save writes the active bundle to path as JSON. The write goes to a
// temporary file first and is renamed into place, so a crash mid-write never
// leaves a truncated bundle where a loadable one used to be.
func (m *Model) Save(path string) error {
	bundle := m.active.load()
	if bundle == nil {
		return ErrModelNotTrained
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create bundle dir: %w", err)
		}
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace bundle: %w", err)
	}
	return nil
}

// Load reads a bundle from path, validates it against the current feature
// schema, and activates it. A schema version or feature-order mismatch is
// rejected outright; a catalog fingerprint mismatch is logged as a warning
// but accepted, since catalogs change more often than models retrain.
func (m *Model) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("decode bundle: %w", err)
	}

	if bundle.SchemaVersion != SchemaVersion {
		return fmt.Errorf("bundle schema version %d does not match %d", bundle.SchemaVersion, SchemaVersion)
	}
	if len(bundle.FeatureNames) != numFeatures {
		return fmt.Errorf("bundle has %d feature columns, want %d", len(bundle.FeatureNames), numFeatures)
	}
	for i, name := range bundle.FeatureNames {
		if name != featureNames[i] {
			return fmt.Errorf("bundle feature column %d is %q, want %q", i, name, featureNames[i])
		}
	}
	if bundle.Forest == nil || len(bundle.Forest.Trees) == 0 {
		return fmt.Errorf("bundle contains no trained forest")
	}

	if bundle.CatalogFingerprint != m.kb.Fingerprint() {
		m.logger.Warn("bundle was trained against a different catalog",
			"bundle_fingerprint", bundle.CatalogFingerprint,
			"catalog_fingerprint", m.kb.Fingerprint(),
		)
	}

	m.active.store(&bundle)
	return nil
}
