package symptom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
	"github.com/aimedicare/aimedicare/internal/platform/upstream"
)

const (
	MsgDiagnosisParams = "Symptoms, gender, and year_of_birth are required."
	MsgSymptomIDs      = "symptoms must be a list of symptom ids, e.g. [10,238]."
	MsgGender          = `gender must be "male" or "female".`
	MsgYearOfBirth     = "year_of_birth must be a valid year."
	MsgIssueID         = "issue id is required."
	MsgUnavailable     = "The symptom checker is currently unavailable. Please try again later."
)

var (
	errEmptySymptoms = errors.New("no symptom ids")
	errNonPositiveID = errors.New("symptom ids must be positive")
)

// Lookup is the part of Client the handler needs.
type Lookup interface {
	Symptoms(ctx context.Context) (json.RawMessage, error)
	Diagnosis(ctx context.Context, q DiagnosisQuery) (json.RawMessage, error)
	Issue(ctx context.Context, id int) (json.RawMessage, error)
}

type Handler struct {
	lookup Lookup
	now    func() time.Time
}

func NewHandler(lookup Lookup) *Handler {
	return &Handler{lookup: lookup, now: time.Now}
}

// RegisterRoutes mounts the lookups on g with mw applied to each route.
func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.GET("/symptoms", h.Symptoms, mw...)
	g.GET("/diagnosis", h.Diagnosis, mw...)
	g.GET("/issue", h.Issue, mw...)
}

func (h *Handler) Symptoms(c echo.Context) error {
	raw, err := h.lookup.Symptoms(c.Request().Context())
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, listEnvelope("symptoms", raw))
}

func (h *Handler) Diagnosis(c echo.Context) error {
	rawSymptoms := strings.TrimSpace(c.QueryParam("symptoms"))
	gender := strings.ToLower(strings.TrimSpace(c.QueryParam("gender")))
	rawYear := strings.TrimSpace(c.QueryParam("year_of_birth"))
	if rawSymptoms == "" || gender == "" || rawYear == "" {
		return apperror.Validation(MsgDiagnosisParams)
	}

	ids, err := ParseSymptomIDs(rawSymptoms)
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, MsgSymptomIDs, err)
	}
	if gender != "male" && gender != "female" {
		return apperror.Validation(MsgGender)
	}
	year, err := strconv.Atoi(rawYear)
	if err != nil || year < 1900 || year > h.now().Year() {
		return apperror.Validation(MsgYearOfBirth)
	}

	raw, err := h.lookup.Diagnosis(c.Request().Context(), DiagnosisQuery{
		SymptomIDs:  ids,
		Gender:      gender,
		YearOfBirth: year,
	})
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, listEnvelope("diagnosis", raw))
}

func (h *Handler) Issue(c echo.Context) error {
	id, err := strconv.Atoi(strings.TrimSpace(c.QueryParam("issueId")))
	if err != nil || id <= 0 {
		return apperror.Validation(MsgIssueID)
	}

	raw, err := h.lookup.Issue(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"issue":  raw,
	})
}

// ParseSymptomIDs accepts a JSON array ("[10,238]") or a comma separated
// list ("10,238") of positive ids.
func ParseSymptomIDs(s string) ([]int, error) {
	var ids []int
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &ids); err != nil {
			return nil, err
		}
	} else {
		for _, part := range strings.Split(s, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errEmptySymptoms
	}
	for _, id := range ids {
		if id <= 0 {
			return nil, errNonPositiveID
		}
	}
	return ids, nil
}

// listEnvelope adds a results count when raw is a JSON array.
func listEnvelope(key string, raw json.RawMessage) map[string]interface{} {
	out := map[string]interface{}{"status": "success"}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) == nil {
		out["results"] = len(items)
	}
	out[key] = raw
	return out
}

func lookupError(err error) error {
	if errors.Is(err, ErrNotConfigured) {
		return apperror.Wrap(apperror.KindUpstream, MsgUnavailable, err)
	}
	return upstream.AppError(err, MsgUnavailable, true)
}
