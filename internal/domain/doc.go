// Package domain models crop risk assessment data.
//
// # Factors
//
// Every assessment scores the same five environmental factors:
//
//	temperature  — air temperature in °C
//	moisture     — volumetric soil moisture on the unit interval
//	humidity     — relative humidity in percent
//	ndvi         — Normalized Difference Vegetation Index, a unit-interval
//	               proxy for vegetation health and density
//	rainfall     — dimensionless rainfall index, roughly 0–2
//
// Each factor's risk contribution is the reading's deviation from the crop's
// optimal value, normalized by the crop's tolerance (the half-width of its
// acceptable band) and clamped to [0,1]. Moisture and rainfall are
// asymmetric: deficits carry a penalty on top of the normalized deviation,
// because drought damages crops faster than excess water. NDVI is asymmetric
// the other way: readings above optimal are capped at half risk, since dense
// vegetation is rarely the problem it looks like.
//
// # Categories
//
// Crops are grouped into four categories that fix the relative weighting of
// factor risks:
//
//	high_moisture          — e.g. rice, sugarcane; moisture dominates
//	moderate_moisture      — the default weighting
//	drought_tolerant       — e.g. sorghum, millet; temperature dominates
//	temperature_sensitive  — e.g. tomato, lettuce; temperature dominates harder
//
// Each category's weights sum to 1.0. An unknown category falls back to the
// moderate_moisture table.
//
// # Risk levels
//
// Scores classify as Low below 0.3, Medium below 0.6, and High at or above
// 0.6. The boundaries are inclusive on the upper side: 0.3 is Medium and 0.6
// is High.
//
// # Scoring paths
//
// Two paths produce a headline score. The rule-based path is deterministic
// and always available; the learned path is a regression model trained on
// labeled samples and preferred when a trained bundle is loaded. Whichever
// path wins, the factor-level breakdown (factor risks, weights shown to the
// user, weakest factor) is taken from the rule engine so an assessment is
// always explainable.
package domain
