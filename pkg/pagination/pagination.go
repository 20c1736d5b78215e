package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing values take the defaults,
// limit is capped at MaxLimit, and anything that is not a non-negative
// integer is an error naming the parameter.
func FromContext(c echo.Context) (Params, error) {
	limit, err := intParam(c, "limit", DefaultLimit)
	if err != nil {
		return Params{}, err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return Params{}, err
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Limit: limit, Offset: offset}, nil
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("query parameter %s must be a non-negative integer", name)
	}
	return n, nil
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}
