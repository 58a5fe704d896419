package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/cinecritic/internal/bestof"
	"github.com/ZanzyTHEbar/cinecritic/internal/database"
	apperrors "github.com/ZanzyTHEbar/cinecritic/internal/errors"
	"github.com/ZanzyTHEbar/cinecritic/internal/security"
	"github.com/ZanzyTHEbar/cinecritic/internal/types"
)

// bestOfPageSize is how many ranked titles a best-of page shows
const bestOfPageSize = 50

// TitleSource provides scored titles
type TitleSource interface {
	ListTitleScores(ctx context.Context, mediaType string) ([]types.TitleScore, error)
	TitleDetail(ctx context.Context, id string) (*types.TitleDetail, error)
}

// CriteriaSource provides criterion names for the detail page
type CriteriaSource interface {
	ListCriteria(ctx context.Context) ([]database.Criterion, error)
}

// RankingSource provides best-of rankings
type RankingSource interface {
	Get(ctx context.Context, mediaType string, limit int) (*bestof.Response, error)
}

// Handler serves the HTML pages
type Handler struct {
	titles   TitleSource
	criteria CriteriaSource
	rankings RankingSource
	tmpl     *Templates
}

// NewHandler loads the embedded templates
func NewHandler(titles TitleSource, criteria CriteriaSource, rankings RankingSource) (*Handler, error) {
	tmpl, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	return &Handler{titles: titles, criteria: criteria, rankings: rankings, tmpl: tmpl}, nil
}

// Register mounts the pages. The group should carry the CSP middleware.
func (h *Handler) Register(r gin.IRoutes) error {
	static, err := StaticFS()
	if err != nil {
		return err
	}
	staticFS := http.FS(static)

	r.GET("/", h.Index)
	r.GET("/titles/:id", h.Title)
	r.GET("/best/:mediaType", h.Best)
	r.GET("/static/*filepath", func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=3600")
		c.FileFromFS(c.Param("filepath"), staticFS)
	})
	return nil
}

type indexData struct {
	MediaType string
	Titles    []types.TitleScore
}

// Index lists titles, optionally filtered by ?media_type=
func (h *Handler) Index(c *gin.Context) {
	mediaType := c.Query("media_type")
	if mediaType != "" && !database.ValidMediaType(mediaType) {
		h.fail(c, apperrors.NewValidationError("invalid media type", mediaType))
		return
	}

	titles, err := h.titles.ListTitleScores(c.Request.Context(), mediaType)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.tmpl.renderOrFail(c, http.StatusOK, "index", Page{
		Title: "Titles",
		Nonce: security.GetNonce(c),
		Data:  indexData{MediaType: mediaType, Titles: titles},
	})
}

type detailData struct {
	*types.TitleDetail
	CriteriaNames map[string]string
}

// Title shows one title with its evaluations
func (h *Handler) Title(c *gin.Context) {
	ctx := c.Request.Context()

	detail, err := h.titles.TitleDetail(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	criteria, err := h.criteria.ListCriteria(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	names := make(map[string]string, len(criteria))
	for _, cr := range criteria {
		names[cr.ID] = cr.Name
	}

	h.tmpl.renderOrFail(c, http.StatusOK, "title", Page{
		Title: detail.Name,
		Nonce: security.GetNonce(c),
		Data:  detailData{TitleDetail: detail, CriteriaNames: names},
	})
}

// Best shows a best-of ranking
func (h *Handler) Best(c *gin.Context) {
	mediaType := c.Param("mediaType")
	if !bestof.ValidMediaType(mediaType) {
		h.fail(c, apperrors.NewNotFoundError("ranking", mediaType))
		return
	}

	ranking, err := h.rankings.Get(c.Request.Context(), mediaType, bestOfPageSize)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.tmpl.renderOrFail(c, http.StatusOK, "best", Page{
		Title: "Best of",
		Nonce: security.GetNonce(c),
		Data:  ranking,
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	appErr := apperrors.ToAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		slog.Error("Page request failed", "path", c.Request.URL.Path, "error", err)
	}

	h.tmpl.renderOrFail(c, appErr.HTTPStatus, "error", Page{
		Title: http.StatusText(appErr.HTTPStatus),
		Nonce: security.GetNonce(c),
		Data:  appErr.Response().Error,
	})
}
