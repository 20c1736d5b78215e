// Package calculator holds the patient health calculators. The formulas are
// closed-form and have no state.
package calculator

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidGender   = errors.New("invalid gender")
	ErrInvalidActivity = errors.New("invalid activity level")
	ErrInvalidAge      = errors.New("invalid age")
	ErrNonPositive     = errors.New("value must be a positive number")
)

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
	Boy    Gender = "boy"
	Girl   Gender = "girl"
)

// ParseGender is case-insensitive.
func ParseGender(s string) (Gender, error) {
	g := Gender(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case Male, Female, Boy, Girl:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGender, s)
}

func (g Gender) adult() bool { return g == Male || g == Female }

type ActivityLevel string

const (
	Sedentary        ActivityLevel = "sedentary"
	LightlyActive    ActivityLevel = "lightly active"
	ModeratelyActive ActivityLevel = "moderately active"
	VeryActive       ActivityLevel = "very active"
	ExtraActive      ActivityLevel = "extra active"
)

// ParseActivityLevel is case-insensitive.
func ParseActivityLevel(s string) (ActivityLevel, error) {
	a := ActivityLevel(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case Sedentary, LightlyActive, ModeratelyActive, VeryActive, ExtraActive:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActivity, s)
}

var tdeeMultipliers = map[ActivityLevel]float64{
	Sedentary:        1.2,
	LightlyActive:    1.375,
	ModeratelyActive: 1.55,
	VeryActive:       1.725,
	ExtraActive:      1.9,
}

// Water intake has no extra-active tier.
var waterMultipliers = map[ActivityLevel]float64{
	Sedentary:        1.0,
	LightlyActive:    1.3,
	ModeratelyActive: 1.6,
	VeryActive:       1.8,
}

const waterLitersPerKg = 0.033

// Weight status bands. Each upper bound is exclusive.
const (
	StatusUnderweight = "Underweight"
	StatusNormal      = "Normal weight"
	StatusOverweight  = "Overweight"
	StatusObese       = "Obese"
)

func positive(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return ErrNonPositive
		}
	}
	return nil
}

func bmi(weightKg, heightCm float64) float64 {
	m := heightCm / 100
	return weightKg / (m * m)
}

// BMI returns the body mass index and its weight status.
func BMI(weightKg, heightCm float64) (float64, string, error) {
	if err := positive(weightKg, heightCm); err != nil {
		return 0, "", err
	}
	v := bmi(weightKg, heightCm)
	return v, WeightStatus(v), nil
}

func WeightStatus(bmi float64) string {
	switch {
	case bmi < 18.5:
		return StatusUnderweight
	case bmi < 25:
		return StatusNormal
	case bmi < 30:
		return StatusOverweight
	default:
		return StatusObese
	}
}

// BMR returns the Mifflin-St Jeor basal metabolic rate and the total daily
// energy expenditure for the activity level, both in kcal. Only male and
// female are accepted.
func BMR(ageYears, weightKg, heightCm float64, g Gender, a ActivityLevel) (bmr, tdee float64, err error) {
	if err := positive(ageYears, weightKg, heightCm); err != nil {
		return 0, 0, err
	}
	base := 10*weightKg + 6.25*heightCm - 5*ageYears
	switch g {
	case Male:
		bmr = base + 5
	case Female:
		bmr = base - 161
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidGender, g)
	}
	m, ok := tdeeMultipliers[a]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidActivity, a)
	}
	return bmr, bmr * m, nil
}

// BodyFat estimates the body fat percentage from BMI. Adults are 18 to 99
// years old, children (boy, girl) 6 to 17.
func BodyFat(g Gender, heightCm, weightKg, ageYears float64) (float64, error) {
	if err := positive(heightCm, weightKg, ageYears); err != nil {
		return 0, err
	}

	minAge, maxAge := 6.0, 17.0
	if g.adult() {
		minAge, maxAge = 18, 99
	}
	if ageYears < minAge || ageYears > maxAge {
		return 0, fmt.Errorf("%w for %s", ErrInvalidAge, g)
	}

	b := bmi(weightKg, heightCm)
	switch g {
	case Male:
		return 1.2*b + 0.23*ageYears - 16.2, nil
	case Female:
		return 1.2*b + 0.23*ageYears - 5.4, nil
	case Boy:
		return 1.51*b - 0.7*ageYears - 2.2, nil
	case Girl:
		return 1.51*b - 0.7*ageYears + 1.4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGender, g)
}

// WaterIntake returns the recommended daily intake in liters.
func WaterIntake(weightKg float64, a ActivityLevel) (float64, error) {
	if err := positive(weightKg); err != nil {
		return 0, err
	}
	m, ok := waterMultipliers[a]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidActivity, a)
	}
	return weightKg * m * waterLitersPerKg, nil
}
