package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/davidfague/bmtool/internal/analysis"
	"github.com/davidfague/bmtool/internal/connectivity"
	"github.com/davidfague/bmtool/internal/export"
	"github.com/davidfague/bmtool/internal/network"
	"github.com/davidfague/bmtool/internal/service"
	"github.com/davidfague/bmtool/internal/telemetry"
)

const maxReportBytes = 32 << 20

// RouterConfig contains router configuration.
type RouterConfig struct {
	Service     *service.PlotService
	JobManager  *JobManager
	Metrics     *telemetry.Metrics
	CORSOrigins []string
	RateLimit   RateLimitConfig
	Logger      *slog.Logger
}

// RateLimitConfig bounds requests to the figure endpoints.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	svc := cfg.Service
	limiter := NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
	validate := validator.New()

	r.Route("/api", func(r chi.Router) {
		r.Get("/networks", networksHandler(svc))
		r.Get("/cells", cellsHandler(svc))

		// Figure endpoints
		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Get("/matrix/{kind}", matrixHandler(svc))
			r.Post("/connector", connectorHandler(svc))
			r.Get("/positions.png", spatialHandler(svc, false))
			r.Get("/rotations.png", spatialHandler(svc, true))
			r.Get("/raster.png", rasterHandler(svc))
			r.Get("/graph.dot", graphHandler(svc))
			r.Get("/iclamps.png", inputsHandler(svc.Clamps))
			r.Get("/inspikes.png", inputsHandler(svc.InputSpikes))
		})

		// Render job endpoints
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobSubmitHandler(cfg.JobManager, validate))
			r.Get("/{job_id}", jobStatusHandler(cfg.JobManager))
			r.Delete("/{job_id}", jobCancelHandler(cfg.JobManager))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", reportsHandler(cfg.JobManager))
			r.Get("/{report_id}", reportHandler(cfg.JobManager))
			r.Get("/{report_id}/export.xlsx", reportExportHandler(cfg.JobManager))
		})
	})

	return r
}

// queryParams flattens the first value of every query parameter.
func queryParams(r *http.Request) map[string]string {
	q := r.URL.Query()
	out := make(map[string]string, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}

func figureOptions(r *http.Request) service.Options {
	q := r.URL.Query()
	rotate, _ := strconv.ParseBool(q.Get("rotate_text"))
	return service.Options{
		Title:      q.Get("title"),
		Colormap:   q.Get("colormap"),
		RotateText: rotate,
	}
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}

func writeRawJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// writeGrid writes a reduced grid as a spreadsheet or as CSV.
func writeGrid(w http.ResponseWriter, r *http.Request, g connectivity.Grid, title, name, format string) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "xlsx":
		err = export.WriteXLSX(&buf, g, title)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	case "csv":
		err = export.WriteCSV(&buf, g)
		w.Header().Set("Content-Type", "text/csv")
	}
	if err != nil {
		w.Header().Del("Content-Type")
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+format))
	w.Write(buf.Bytes())
}

func checkFormat(format string) error {
	switch format {
	case "json", "png", "xlsx", "csv":
		return nil
	}
	return invalidParameter("format", fmt.Sprintf("unknown format %q, want json, png, xlsx or csv", format))
}

func networksHandler(svc *service.PlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src := svc.Source()
		if src == nil {
			writeError(w, r, network.ErrNoConfig)
			return
		}
		render.JSON(w, r, map[string]interface{}{
			"networks": src.Networks(),
		})
	}
}

func cellsHandler(svc *service.PlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cells, bio, err := svc.Cells(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]interface{}{
			"networks":    cells,
			"biophysical": bio,
		})
	}
}

func matrixHandler(svc *service.PlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := chi.URLParam(r, "kind")
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "json"
		}
		if err := checkFormat(format); err != nil {
			writeError(w, r, err)
			return
		}
		req, err := service.MatrixRequestFromParams(kind, queryParams(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		switch format {
		case "json":
			data, err := svc.MatrixMapping(r.Context(), req)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeRawJSON(w, data)
		case "png":
			data, err := svc.MatrixFigure(r.Context(), req, figureOptions(r))
			if err != nil {
				writeError(w, r, err)
				return
			}
			writePNG(w, data)
		default:
			res, err := svc.ReduceMatrix(r.Context(), req)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeGrid(w, r, res.Grid, res.Title, kind, format)
		}
	}
}

func connectorHandler(svc *service.PlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format := q.Get("format")
		if format == "" {
			format = "json"
		}
		if err := checkFormat(format); err != nil {
			writeError(w, r, err)
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportBytes))
		if err != nil {
			writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_REQUEST", "failed to read request body", err.Error()))
			return
		}
		name := "report.csv"
		if strings.Contains(r.Header.Get("Content-Type"), "spreadsheetml") {
			name = "report.xlsx"
		}

		copts := connectivity.ConnectorOptions{
			Exclude:     analysis.SplitList(q.Get("exclude")),
			AssemblyKey: q.Get("assembly_key"),
			PopOrder:    analysis.SplitList(q.Get("pop_order")),
		}
		out, err := svc.Connector(r.Context(), name, data, copts, figureOptions(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		switch format {
		case "json":
			render.JSON(w, r, out.Grid.Mapping())
		case "png":
			writePNG(w, out.PNG)
		default:
			writeGrid(w, r, *out.Grid, out.Title, "connector", format)
		}
	}
}

func spatialHandler(svc *service.PlotService, rotations bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := service.SpatialRequest{Query: analysis.PositionQuery{
			Networks: analysis.SplitList(q.Get("networks")),
			GroupBy:  q.Get("group_by"),
			Groups:   analysis.SplitList(q.Get("groups")),
		}}
		var err error
		if req.Query.Subset, err = intParam(q.Get("subset"), "subset"); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Arrows.Length, err = floatParam(q.Get("quiver_length"), "quiver_length"); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Arrows.HeadRatio, err = floatParam(q.Get("arrow_length_ratio"), "arrow_length_ratio"); err != nil {
			writeError(w, r, err)
			return
		}

		var out service.Output
		if rotations {
			out, err = svc.Rotations(r.Context(), req, figureOptions(r))
		} else {
			out, err = svc.Positions(r.Context(), req, figureOptions(r))
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writePNG(w, out.PNG)
	}
}

func rasterHandler(svc *service.PlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := service.RasterRequest{Network: q.Get("network")}
		for _, b := range []struct {
			name string
			dst  **float64
		}{{"tstart", &req.TStart}, {"tstop", &req.TStop}} {
			if v := q.Get(b.name); v != "" {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					writeError(w, r, invalidParameter(b.name, b.name+" must be a number"))
					return
				}
				*b.dst = &f
			}
		}
		colors, err := ParseColorMap(q.Get("color_map"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.ColorMap = colors

		out, err := svc.Raster(r.Context(), req, figureOptions(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writePNG(w, out.PNG)
	}
}

// inputsHandler serves a simulation input figure. A simulation without
// inputs of that kind gets 204 No Content.
func inputsHandler(plot func(context.Context, service.Options) (service.Output, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := plot(r.Context(), figureOptions(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(out.PNG) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writePNG(w, out.PNG)
	}
}

func graphHandler(svc *service.PlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel, err := service.SelectionFromParams(queryParams(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out, err := svc.Graph(r.Context(), service.GraphRequest{Selection: sel, Property: r.URL.Query().Get("edge_property")}, figureOptions(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		w.Write(out.DOT)
	}
}

// ParseColorMap reads "pop:color" pairs separated by commas.
func ParseColorMap(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range analysis.SplitList(s) {
		pop, c, ok := strings.Cut(pair, ":")
		if !ok || pop == "" || c == "" {
			return nil, invalidParameter("color_map", fmt.Sprintf("color_map entry %q is not pop:color", pair))
		}
		out[strings.TrimSpace(pop)] = strings.TrimSpace(c)
	}
	return out, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalidParameter(name, name+" must be a non-negative integer")
	}
	return n, nil
}

func floatParam(v, name string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, invalidParameter(name, name+" must be a non-negative number")
	}
	return f, nil
}
