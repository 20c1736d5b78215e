package calculator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Input is a raw calculator argument. Clients send numbers either as JSON
// numbers, JSON strings or query parameters.
type Input string

func (in *Input) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*in = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*in = Input(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a number or string, got %s", b)
	}
	*in = Input(n.String())
	return nil
}

// UnmarshalParam lets echo bind query parameters into Input.
func (in *Input) UnmarshalParam(s string) error {
	*in = Input(s)
	return nil
}

func (in Input) missing() bool { return strings.TrimSpace(string(in)) == "" }

func (in Input) float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(in)), 64)
}

type BMIRequest struct {
	Weight Input `query:"weight" json:"weight"`
	Height Input `query:"height" json:"height"`
}

type BMRRequest struct {
	Age           Input `query:"age" json:"age"`
	Gender        Input `query:"gender" json:"gender"`
	Weight        Input `query:"weight" json:"weight"`
	Height        Input `query:"height" json:"height"`
	ActivityLevel Input `query:"activityLevel" json:"activityLevel"`
}

type BodyFatRequest struct {
	Gender Input `query:"gender" json:"gender"`
	Height Input `query:"height" json:"height"`
	Weight Input `query:"weight" json:"weight"`
	Age    Input `query:"age" json:"age"`
}

type WaterIntakeRequest struct {
	Weight        Input `query:"weight" json:"weight"`
	ActivityLevel Input `query:"activityLevel" json:"activityLevel"`
}
