package user

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
	"github.com/aimedicare/aimedicare/internal/platform/auth"
	"github.com/aimedicare/aimedicare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the user routes on g (normally /api/users). limit
// guards the unauthenticated credential endpoints.
func (h *Handler) RegisterRoutes(g *echo.Group, protect, limit echo.MiddlewareFunc) {
	g.POST("/signupAsPatient", h.SignupPatient, limit)
	g.POST("/signupAsDoctor", h.SignupDoctor, limit)
	g.POST("/login", h.Login, limit)
	g.POST("/logout", h.Logout)
	g.POST("/forgotPassword", h.ForgotPassword, limit)
	g.PATCH("/resetPassword/:token", h.ResetPassword, limit)

	g.PATCH("/updateMyPassword", h.UpdatePassword, protect)
	g.PATCH("/updateMe", h.UpdateMe, protect)
	g.DELETE("/deleteMe", h.DeleteMe, protect)
	g.GET("", h.ListUsers, protect)
	g.GET("/", h.ListUsers, protect)
}

func (h *Handler) SignupPatient(c echo.Context) error { return h.signup(c, auth.RolePatient) }

func (h *Handler) SignupDoctor(c echo.Context) error { return h.signup(c, auth.RoleDoctor) }

func (h *Handler) signup(c echo.Context, role auth.Role) error {
	var req SignupRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Signup(c.Request().Context(), role, req)
	if err != nil {
		return err
	}
	return sendToken(c, http.StatusCreated, res)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return sendToken(c, http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	token, err := h.svc.Logout(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"token":  token,
	})
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	resetURL := c.Scheme() + "://" + c.Request().Host + "/api/users/resetPassword/"
	if err := h.svc.ForgotPassword(c.Request().Context(), req, resetURL); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": MsgTokenSent,
	})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.svc.ResetPassword(c.Request().Context(), c.Param("token"), req)
	if err != nil {
		return err
	}
	return sendToken(c, http.StatusOK, res)
}

func (h *Handler) UpdatePassword(c echo.Context) error {
	var req UpdatePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	sess, _ := auth.SessionFromContext(c.Request().Context())
	res, err := h.svc.UpdatePassword(c.Request().Context(), sess, req)
	if err != nil {
		return err
	}
	return sendToken(c, http.StatusOK, res)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	var req UpdateMeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	sess, _ := auth.SessionFromContext(c.Request().Context())
	u, err := h.svc.UpdateMe(c.Request().Context(), sess, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   map[string]interface{}{"user": u},
	})
}

func (h *Handler) DeleteMe(c echo.Context) error {
	sess, _ := auth.SessionFromContext(c.Request().Context())
	if err := h.svc.DeleteMe(c.Request().Context(), sess); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListUsers(c echo.Context) error {
	page, err := pagination.FromContext(c)
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, "limit and offset must be non-negative integers", err)
	}

	users, total, err := h.svc.ListUsers(c.Request().Context(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"results": len(users),
		"total":   total,
		"hasMore": page.HasNext(total),
		"data":    map[string]interface{}{"users": users},
	})
}

func sendToken(c echo.Context, status int, res *AuthResult) error {
	return c.JSON(status, map[string]interface{}{
		"status": "success",
		"token":  res.Token,
		"data":   map[string]interface{}{"user": res.User},
	})
}

func bindJSON(c echo.Context, dst interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return apperror.Wrap(apperror.KindValidation, "Invalid request body", err)
	}
	return nil
}
