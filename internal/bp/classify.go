// Package bp holds the blood-pressure side of a screening: the category table,
// the camera-based estimate heuristic and manual-entry validation.
package bp

import "ppg-screening/internal/models"

// Classification is a category with its display severity.
type Classification struct {
	Category models.BPCategory `json:"category"`
	Severity int               `json:"severity"`
}

// Classify evaluates the category table top-down; the first row that matches wins.
func Classify(systolic, diastolic int) Classification {
	var c models.BPCategory
	switch {
	case systolic >= 180 || diastolic >= 120:
		c = models.CategoryCrisis
	case systolic >= 140 || diastolic >= 90:
		c = models.CategoryStage2
	case systolic >= 130 || diastolic >= 80:
		c = models.CategoryStage1
	case systolic >= 120 && diastolic < 80:
		c = models.CategoryElevated
	case systolic < 90 || diastolic < 60:
		c = models.CategoryLow
	default:
		c = models.CategoryNormal
	}
	return Classification{Category: c, Severity: c.Severity()}
}

// MAP is the mean arterial pressure, diastolic + pulse pressure / 3.
func MAP(systolic, diastolic int) float64 {
	return float64(diastolic) + float64(systolic-diastolic)/3
}
