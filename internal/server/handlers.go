package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/undergis/spatialid/internal/feed"
	"github.com/undergis/spatialid/internal/model"
	"github.com/undergis/spatialid/internal/pipeline"
	"github.com/undergis/spatialid/internal/projection"
	"github.com/undergis/spatialid/internal/sid"
	"github.com/undergis/spatialid/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// kindStatus maps the failure taxonomy onto HTTP status codes: caller input
// problems are 400, capacity refusals 422, everything else 500.
func kindStatus(kind model.ErrorKind) int {
	switch kind {
	case model.KindUnsupportedCRS, model.KindOutOfRange,
		model.KindMalformedToken, model.KindInvalidGeometry:
		return http.StatusBadRequest
	case model.KindResolutionTooFine, model.KindResourceExhausted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type cellResponse struct {
	Token    string           `json:"token"`
	Z        uint8            `json:"z"`
	F        int64            `json:"f"`
	X        uint64           `json:"x"`
	Y        uint64           `json:"y"`
	Center   projection.Point `json:"center"`
	Min      projection.Point `json:"min"`
	Max      projection.Point `json:"max"`
	Parent   string           `json:"parent,omitempty"`
	Children []string         `json:"children,omitempty"`
}

func (s *Server) handleDecodeCell(w http.ResponseWriter, r *http.Request) {
	token := strings.Join([]string{
		chi.URLParam(r, "z"), chi.URLParam(r, "f"),
		chi.URLParam(r, "x"), chi.URLParam(r, "y"),
	}, "/")
	id, err := sid.Parse(token)
	if err != nil {
		writeError(w, kindStatus(model.KindOf(err)), err.Error())
		return
	}

	grid := projection.NewGrid(id.Z)
	lo := grid.Unproject(projection.Unit{X: float64(id.X), Y: float64(id.Y), F: float64(id.F)})
	hi := grid.Unproject(projection.Unit{X: float64(id.X) + 1, Y: float64(id.Y) + 1, F: float64(id.F) + 1})
	center := grid.Unproject(projection.Unit{X: float64(id.X) + 0.5, Y: float64(id.Y) + 0.5, F: float64(id.F) + 0.5})

	resp := cellResponse{
		Token:  id.String(),
		Z:      id.Z,
		F:      id.F,
		X:      id.X,
		Y:      id.Y,
		Center: center,
		// The y axis runs north to south, so the corner points swap latitude.
		Min: projection.Point{Lon: lo.Lon, Lat: math.Min(lo.Lat, hi.Lat), Alt: lo.Alt},
		Max: projection.Point{Lon: hi.Lon, Lat: math.Max(lo.Lat, hi.Lat), Alt: hi.Alt},
	}
	if parent, err := id.Parent(); err == nil {
		resp.Parent = parent.String()
	}
	if children, err := id.Children(); err == nil {
		resp.Children = make([]string, len(children))
		for i, c := range children {
			resp.Children[i] = c.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type coverageRequest struct {
	Feature      json.RawMessage `json:"feature"`
	Zoom         *uint8          `json:"zoom,omitempty"`
	Policy       *model.Policy   `json:"policy,omitempty"`
	MinMergeZoom *uint8          `json:"min_merge_zoom,omitempty"`
	CRS          *int            `json:"crs,omitempty"`
}

type coverageResponse struct {
	FeatureID string            `json:"feature_id"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Tokens    []string          `json:"tokens,omitempty"`
	Failure   *model.Failure    `json:"failure,omitempty"`
}

// requestOptions overlays per-request overrides onto the server defaults.
func (s *Server) requestOptions(req coverageRequest) model.Options {
	opts := s.opts
	if req.Zoom != nil {
		opts.Zoom = *req.Zoom
	}
	if req.Policy != nil {
		opts.Policy = *req.Policy
	}
	if req.MinMergeZoom != nil {
		opts.MinMergeZoom = *req.MinMergeZoom
	}
	if req.CRS != nil {
		opts.CRS = *req.CRS
	}
	return opts
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	var req coverageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Feature) == 0 {
		writeError(w, http.StatusBadRequest, "feature is required")
		return
	}

	var feat geojson.Feature
	if err := json.Unmarshal(req.Feature, &feat); err != nil {
		writeError(w, http.StatusBadRequest, "invalid GeoJSON feature")
		return
	}

	opts := s.requestOptions(req)
	eng, err := pipeline.New(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := model.FeatureRecord{ID: feed.FeatureID(&feat), Attrs: feed.AttrsFromProps(feat.Properties)}
	mesh, merr := feed.MeshFromFeature(&feat, opts.CRS)
	if merr != nil {
		f := model.FailureFor(rec.ID, merr)
		writeJSON(w, kindStatus(f.Kind), coverageResponse{
			FeatureID: rec.ID, Attrs: rec.Attrs, Failure: f,
		})
		return
	}
	rec.Geometry = mesh

	outcome := eng.ProcessFeature(r.Context(), rec)
	resp := coverageResponse{
		FeatureID: outcome.FeatureID,
		Attrs:     outcome.Attrs,
		Failure:   outcome.Failure,
	}
	if outcome.Failure != nil {
		writeJSON(w, kindStatus(outcome.Failure.Kind), resp)
		return
	}
	resp.Tokens = outcome.Coverage.Tokens()
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Source string `json:"source"`
	Format string `json:"format"`
	coverageRequest
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	opts := s.requestOptions(req.coverageRequest)
	eng, err := pipeline.New(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var src feed.Source
	switch req.Format {
	case "", "geojson":
		src, err = feed.OpenGeoJSON(req.Source, opts.CRS)
	case "shapefile":
		src, err = feed.OpenShapefile(req.Source, opts.CRS)
	default:
		writeError(w, http.StatusBadRequest, "unknown format "+strconv.Quote(req.Format))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Refuse rather than queue when the run ceiling is reached; the caller
	// can retry once an in-flight run finishes.
	select {
	case s.batchSlots <- struct{}{}:
	default:
		src.Close() //nolint:errcheck
		rerr := eris.Wrapf(model.ErrResourceExhausted, "server: %d batch runs already in flight", cap(s.batchSlots))
		writeError(w, kindStatus(model.KindOf(rerr)), rerr.Error())
		return
	}

	run, err := s.store.CreateRun(r.Context(), req.Source, opts)
	if err != nil {
		<-s.batchSlots
		src.Close() //nolint:errcheck
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The run continues after this request returns; it is bounded by the
	// server's lifetime, not the request's.
	go func() {
		defer func() { <-s.batchSlots }()
		defer src.Close() //nolint:errcheck
		if _, err := s.runner.ExecuteRun(s.baseCtx, run, eng, src); err != nil {
			zap.L().Error("server: batch run failed",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"status": string(run.Status),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), runID); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	failuresOnly := r.URL.Query().Get("failures") == "true"
	outcomes, err := s.store.ListOutcomes(r.Context(), runID, failuresOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]coverageResponse, len(outcomes))
	for i, o := range outcomes {
		resp[i] = coverageResponse{
			FeatureID: o.FeatureID,
			Attrs:     o.Attrs,
			Failure:   o.Failure,
		}
		if o.Coverage != nil {
			resp[i].Tokens = o.Coverage.Tokens()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": resp})
}
