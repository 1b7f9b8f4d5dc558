package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// SchemaVersion tags the feature layout baked into a bundle. Bump it
// whenever featureNames changes; bundles with a different version are
// rejected at load.
const SchemaVersion = 1

// featureNames fixes the feature column order shared by training and
// inference. Column order can never drift between the two paths because
// both build vectors from this single list.
var featureNames = []string{
	"temperature",
	"moisture",
	"humidity",
	"ndvi",
	"rainfall",
	"crop_code",
	"category_code",
	"temp_moisture",
	"humidity_ndvi",
	"temp_humidity",
	"temp_deviation",
	"moisture_deviation",
	"humidity_deviation",
	"ndvi_deviation",
	"rainfall_deviation",
}

const numFeatures = 15

// deviationFactor maps a deviation feature name to its factor bucket for
// weight aggregation. Interaction and categorical-code features carry no
// bucket and their importance mass is dropped (reported, not redistributed).
var deviationFactor = map[string]domain.Factor{
	"temp_deviation":     domain.FactorTemperature,
	"moisture_deviation": domain.FactorMoisture,
	"humidity_deviation": domain.FactorHumidity,
	"ndvi_deviation":     domain.FactorNDVI,
	"rainfall_deviation": domain.FactorRainfall,
}

// FeatureNames returns the schema's column order.
func FeatureNames() []string {
	out := make([]string, len(featureNames))
	copy(out, featureNames)
	return out
}

var (
	// ErrUnknownCrop means the crop was not seen during training; its
	// categorical code does not exist and inference must fail loudly rather
	// than silently remap.
	ErrUnknownCrop = errors.New("crop not seen during training")

	// ErrUnknownCategory is the same failure for the crop's category.
	ErrUnknownCategory = errors.New("category not seen during training")
)

// Encoder holds the categorical code tables fixed at train time. It is an
// immutable artifact shipped inside the model bundle; codes are never
// remapped at inference.
type Encoder struct {
	Crops      map[string]float64 `json:"crops"`
	Categories map[string]float64 `json:"categories"`
}

// fitEncoder assigns stable numeric codes to every crop and category seen in
// the training set, in sorted order so the assignment is deterministic.
func fitEncoder(samples []domain.TrainingSample, kb *catalog.Catalog) (Encoder, error) {
	cropSet := make(map[string]struct{})
	catSet := make(map[string]struct{})
	for _, s := range samples {
		profile, err := kb.Get(s.Crop)
		if err != nil {
			return Encoder{}, fmt.Errorf("training sample references %q: %w", s.Crop, err)
		}
		cropSet[s.Crop] = struct{}{}
		catSet[string(profile.Category)] = struct{}{}
	}

	enc := Encoder{
		Crops:      make(map[string]float64, len(cropSet)),
		Categories: make(map[string]float64, len(catSet)),
	}
	for i, name := range sortedKeys(cropSet) {
		enc.Crops[name] = float64(i)
	}
	for i, name := range sortedKeys(catSet) {
		enc.Categories[name] = float64(i)
	}
	return enc, nil
}

// codes resolves the categorical codes for a crop, failing on anything the
// encoder has never seen.
func (e Encoder) codes(profile catalog.CropProfile) (cropCode, categoryCode float64, err error) {
	cropCode, ok := e.Crops[profile.Name]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownCrop, profile.Name)
	}
	categoryCode, ok = e.Categories[string(profile.Category)]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownCategory, profile.Category)
	}
	return cropCode, categoryCode, nil
}

// buildVector assembles the 15-entry feature vector for one observation:
// the five raw readings, the two categorical codes, three interaction terms,
// and the five absolute deviations from the crop's optimal values.
func buildVector(profile catalog.CropProfile, obs domain.Observation, cropCode, categoryCode float64) []float64 {
	v := make([]float64, 0, numFeatures)
	v = append(v,
		obs.Temperature,
		obs.Moisture,
		obs.Humidity,
		obs.NDVI,
		obs.Rainfall,
		cropCode,
		categoryCode,
		obs.Temperature*obs.Moisture,
		obs.Humidity*obs.NDVI,
		obs.Temperature*obs.Humidity,
	)
	for _, f := range domain.Factors {
		r := profile.Range(f)
		v = append(v, abs(obs.Value(f)-r.Optimal))
	}
	return v
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
