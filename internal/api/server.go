package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/david/licitacoes/internal/auth"
	"github.com/david/licitacoes/internal/browse"
	"github.com/david/licitacoes/internal/export"
	"github.com/david/licitacoes/internal/logging"
	"github.com/david/licitacoes/internal/models"
)

// Server exposes the clean dataset. The dataset is loaded once and never
// modified, so handlers share it without locking.
type Server struct {
	Echo   *echo.Echo
	Auth   *auth.Service
	Data   *models.Dataset
	Browse browse.Config
}

func NewServer(ds *models.Dataset, authService *auth.Service, cfg browse.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		allowedOrigins = append(allowedOrigins, splitCSV(extra)...)
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{
		Echo:   e,
		Auth:   authService,
		Data:   ds,
		Browse: cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.POST("/auth/login", s.handleLogin)

	protected := api.Group("")
	protected.Use(s.Auth.Middleware)
	protected.GET("/columns", s.handleColumns)
	protected.GET("/options", s.handleOptions)
	protected.GET("/bids", s.handleListBids)
	protected.GET("/bids/export", s.handleExportBids)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.Auth.Login(req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": auth.InvalidCredsMessage})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleColumns(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"columns":         s.Data.Columns,
		"default_columns": browse.ResolveDefaultColumns(s.Data, s.Browse),
	})
}

func (s *Server) handleOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{
		"status":     browse.Options(s.Data, s.Browse.StatusColumn),
		"uf":         browse.Options(s.Data, s.Browse.StateColumn),
		"municipio":  browse.Options(s.Data, s.Browse.MunicipalityColumn),
		"modalidade": browse.Options(s.Data, s.Browse.ModalityColumn),
	})
}

type bidsResponse struct {
	Columns           []string `json:"columns"`
	Rows              [][]any  `json:"rows"`
	Count             int      `json:"count"`
	TotalValue        string   `json:"total_value"`
	TotalValueDisplay string   `json:"total_value_display"`
}

func (s *Server) handleListBids(c echo.Context) error {
	criteria, selection := criteriaFromQuery(c)
	view := browse.Apply(s.Data, criteria, selection, s.Browse)

	return c.JSON(http.StatusOK, bidsResponse{
		Columns:           view.Columns,
		Rows:              view.Rows,
		Count:             view.Stats.Count,
		TotalValue:        view.Stats.Total.StringFixed(2),
		TotalValueDisplay: view.Stats.TotalDisplay(),
	})
}

func (s *Server) handleExportBids(c echo.Context) error {
	criteria, selection := criteriaFromQuery(c)
	view := browse.Apply(s.Data, criteria, selection, s.Browse)

	data, err := export.View(view)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	username, err := auth.GetUsernameFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	}
	logging.Log.WithFields(logrus.Fields{
		"user": username,
		"rows": view.Stats.Count,
	}).Info("Exported bids")

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.FileName))
	return c.Blob(http.StatusOK, export.MIMEType, data)
}

// criteriaFromQuery reads filters from the query string. Values that do not
// parse are treated as absent.
func criteriaFromQuery(c echo.Context) (browse.Criteria, []string) {
	criteria := browse.Criteria{
		Status:         splitCSV(c.QueryParam("status")),
		States:         splitCSV(c.QueryParam("uf")),
		Municipalities: splitCSV(c.QueryParam("municipio")),
		Modalities:     splitCSV(c.QueryParam("modalidade")),
		Keywords:       c.QueryParam("q"),
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(c.QueryParam("min_value")), 64); err == nil && v > 0 {
		criteria.MinValue = v
	}
	return criteria, splitCSV(c.QueryParam("columns"))
}

func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
