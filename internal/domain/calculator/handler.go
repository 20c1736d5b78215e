package calculator

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
)

const (
	MsgMissingParams  = "Missing required parameters."
	MsgInvalidNumeric = "Invalid numeric input."
	MsgBMRGender      = `Invalid gender. Please use "male" or "female".`
	MsgBodyFatGender  = `Invalid gender. Please use "male", "female", "boy", or "girl".`
	MsgActivity       = "Invalid activity level."
)

type Metric struct {
	Value       interface{} `json:"value"`
	Unit        string      `json:"unit,omitempty"`
	Description string      `json:"description"`
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes mounts the calculators on g with mw applied to each route.
// Each one answers GET with query parameters and POST with a JSON body.
func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	for path, fn := range map[string]echo.HandlerFunc{
		"/bmi":         h.BMI,
		"/bmr":         h.BMR,
		"/bodyFat":     h.BodyFat,
		"/waterIntake": h.WaterIntake,
	} {
		g.GET(path, fn, mw...)
		g.POST(path, fn, mw...)
	}
}

func (h *Handler) BMI(c echo.Context) error {
	var req BMIRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Weight.missing() || req.Height.missing() {
		return apperror.Validation(MsgMissingParams)
	}
	nums, err := floats(req.Weight, req.Height)
	if err != nil {
		return err
	}

	v, status, err := BMI(nums[0], nums[1])
	if err != nil {
		return calcError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"BMI":          fmt.Sprintf("%.1f", v),
		"weightStatus": status,
	})
}

func (h *Handler) BMR(c echo.Context) error {
	var req BMRRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Age.missing() || req.Gender.missing() || req.Weight.missing() || req.Height.missing() || req.ActivityLevel.missing() {
		return apperror.Validation(MsgMissingParams)
	}
	nums, err := floats(req.Age, req.Weight, req.Height)
	if err != nil {
		return err
	}

	g, err := ParseGender(string(req.Gender))
	if err != nil || !g.adult() {
		return apperror.Validation(MsgBMRGender)
	}
	a, err := ParseActivityLevel(string(req.ActivityLevel))
	if err != nil {
		return apperror.Validation(MsgActivity)
	}

	bmr, tdee, err := BMR(nums[0], nums[1], nums[2], g, a)
	if err != nil {
		return calcError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bmr": Metric{
			Value:       bmr,
			Description: "Basal Metabolic Rate (BMR) in kcal",
		},
		"tdee": Metric{
			Value:       tdee,
			Description: "Total Daily Energy Expenditure (TDEE) in kcal, including physical activity",
		},
	})
}

func (h *Handler) BodyFat(c echo.Context) error {
	var req BodyFatRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Gender.missing() || req.Height.missing() || req.Weight.missing() || req.Age.missing() {
		return apperror.Validation(MsgMissingParams)
	}
	nums, err := floats(req.Height, req.Weight, req.Age)
	if err != nil {
		return err
	}
	g, err := ParseGender(string(req.Gender))
	if err != nil {
		return apperror.Validation(MsgBodyFatGender)
	}

	pct, err := BodyFat(g, nums[0], nums[1], nums[2])
	if err != nil {
		if errors.Is(err, ErrInvalidAge) {
			return apperror.Validation(fmt.Sprintf("Invalid age for %s.", g))
		}
		return calcError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bodyFatPercentage": Metric{
			Value:       fmt.Sprintf("%.1f%%", pct),
			Description: "Estimated body fat percentage using BMI method",
		},
	})
}

func (h *Handler) WaterIntake(c echo.Context) error {
	var req WaterIntakeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Weight.missing() || req.ActivityLevel.missing() {
		return apperror.Validation(MsgMissingParams)
	}
	nums, err := floats(req.Weight)
	if err != nil {
		return err
	}
	a, err := ParseActivityLevel(string(req.ActivityLevel))
	if err != nil {
		return apperror.Validation(MsgActivity)
	}

	liters, err := WaterIntake(nums[0], a)
	if err != nil {
		return calcError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"waterIntake": Metric{
			Value:       fmt.Sprintf("%.2f", liters),
			Unit:        "liters",
			Description: fmt.Sprintf("Estimated daily water intake based on body weight and activity level (%s)", req.ActivityLevel),
		},
	})
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperror.Wrap(apperror.KindValidation, MsgInvalidNumeric, err)
	}
	return nil
}

func floats(inputs ...Input) ([]float64, error) {
	out := make([]float64, len(inputs))
	for i, in := range inputs {
		v, err := in.float()
		if err != nil {
			return nil, apperror.Wrap(apperror.KindValidation, MsgInvalidNumeric, err)
		}
		out[i] = v
	}
	return out, nil
}

func calcError(err error) error {
	switch {
	case errors.Is(err, ErrNonPositive):
		return apperror.Wrap(apperror.KindValidation, "Values must be positive numbers.", err)
	case errors.Is(err, ErrInvalidActivity):
		return apperror.Wrap(apperror.KindValidation, MsgActivity, err)
	case errors.Is(err, ErrInvalidGender):
		return apperror.Wrap(apperror.KindValidation, MsgBodyFatGender, err)
	}
	return apperror.Unexpected(err)
}
