package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/mux"
	logger "github.com/sirupsen/logrus"

	"github.com/sahithikokkula/sketchd/pkg/metrics"
	"github.com/sahithikokkula/sketchd/pkg/sketches"
	"github.com/sahithikokkula/sketchd/pkg/storage"
)

const maxBodyBytes = 8 << 20

var errBadRequest = errors.New("bad request")

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		logFor(r).WithError(err).Warn("store unreachable")
		writeJSON(w, http.StatusServiceUnavailable, JSON{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, JSON{"status": "ok"})
}

type CreateSketchRequest struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	ItemType   string   `json:"item_type"`
	Fields     []string `json:"fields,omitempty"`
	TopN       int      `json:"topn,omitempty"`
	ErrorBound float64  `json:"error_bound,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Create builds an empty sketch as described by req and stores it. Missing
// error bound and confidence fall back to the configured defaults.
func (h *Handler) Create(ctx context.Context, req CreateSketchRequest) (*storage.Record, sketches.Sketch, error) {
	if req.Name == "" {
		return nil, nil, fmt.Errorf("name required: %w", errBadRequest)
	}
	kind, err := sketches.ParseSketchType(req.Kind)
	if err != nil {
		return nil, nil, err
	}

	params := storage.Parameters{
		ItemType:   req.ItemType,
		Fields:     req.Fields,
		ErrorBound: req.ErrorBound,
		Confidence: req.Confidence,
	}
	if params.ErrorBound == 0 {
		params.ErrorBound = h.cfg.DefaultErrorBound
	}
	if params.Confidence == 0 {
		params.Confidence = h.cfg.DefaultConfidence
	}
	codec, err := codecFor(params)
	if err != nil {
		return nil, nil, err
	}

	var s sketches.Sketch
	switch kind {
	case sketches.CmsTopNType:
		if _, ok := codec.(*sketches.RecordCodec); ok {
			return nil, nil, fmt.Errorf("cms_topn cannot track %s items: %w", codec.TypeID(), sketches.ErrUnsupportedItem)
		}
		params.TopN = req.TopN
		s, err = sketches.NewCmsTopN(req.TopN, params.ErrorBound, params.Confidence)
	case sketches.CountMinSketchType:
		s, err = sketches.NewCountMinSketch(params.ErrorBound, params.Confidence)
	case sketches.MinMaskSketchType:
		s, err = sketches.NewMinMaskSketch(params.ErrorBound, params.Confidence)
	}
	if err != nil {
		return nil, nil, err
	}

	rec := &storage.Record{Name: req.Name, Type: kind, Parameters: params, Data: s.Serialize()}
	if err := h.store.Create(ctx, rec); err != nil {
		return nil, nil, err
	}
	h.SyncSketchGauge(ctx)
	return rec, s, nil
}

// SyncSketchGauge sets the stored sketch gauge from the store.
func (h *Handler) SyncSketchGauge(ctx context.Context) {
	n, err := h.store.Count(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to count sketches")
		return
	}
	metrics.SetSketches(n)
}

func (h *Handler) PostCreateSketch(w http.ResponseWriter, r *http.Request) {
	var req CreateSketchRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rec, s, err := h.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logFor(r).WithFields(logger.Fields{"sketch": rec.Name, "type": rec.Type}).Info("sketch created")
	writeJSON(w, http.StatusCreated, describe(rec, s))
}

func (h *Handler) GetSketches(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.SetSketches(len(infos))
	writeJSON(w, http.StatusOK, JSON{"sketches": infos})
}

func (h *Handler) GetSketch(w http.ResponseWriter, r *http.Request) {
	l, err := h.load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(l.rec, l.sketch))
}

func (h *Handler) DeleteSketch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	unlock := h.locks.lock(name)
	defer unlock()

	if err := h.store.Delete(r.Context(), name); err != nil {
		h.fail(w, r, err)
		return
	}
	h.SyncSketchGauge(r.Context())
	logFor(r).WithField("sketch", name).Info("sketch deleted")
	writeJSON(w, http.StatusOK, JSON{"deleted": name})
}

type ItemsRequest struct {
	Items []any    `json:"items"`
	Masks []uint64 `json:"masks,omitempty"`
}

func (h *Handler) PostItems(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req ItemsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	unlock := h.locks.lock(name)
	defer unlock()

	l, err := h.load(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := canonicalizeAll(l.codec, req.Items)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := JSON{"name": name, "added": len(items)}
	switch s := l.sketch.(type) {
	case *sketches.CmsTopN:
		estimates := make([]uint64, len(items))
		for i, item := range items {
			if s, estimates[i], err = s.AddWithFrequency(item); err != nil {
				h.fail(w, r, fmt.Errorf("item %d: %w", i, err))
				return
			}
		}
		l.sketch = s
		resp["estimates"] = estimates
	case *sketches.CountMinSketch:
		estimates := make([]uint64, len(items))
		for i, item := range items {
			estimates[i] = s.Add(item)
		}
		resp["estimates"] = estimates
	case *sketches.MinMaskSketch:
		if len(req.Masks) != len(items) {
			h.fail(w, r, fmt.Errorf("got %d masks for %d items: %w", len(req.Masks), len(items), errBadRequest))
			return
		}
		masks := make([]uint64, len(items))
		for i, item := range items {
			masks[i] = s.Add(item, req.Masks[i])
		}
		resp["masks"] = masks
	}

	if len(items) > 0 {
		l.rec.Data = l.sketch.Serialize()
		if err := h.store.Upsert(r.Context(), l.rec); err != nil {
			h.fail(w, r, err)
			return
		}
		metrics.AddItems(string(l.rec.Type), len(items))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	l, err := h.load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	if !query.Has("item") {
		h.fail(w, r, fmt.Errorf("item required: %w", errBadRequest))
		return
	}
	v, err := queryValue(l.codec, query.Get("item"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}
	h.writeEstimate(w, r, l, v)
}

type EstimateRequest struct {
	Item any `json:"item"`
}

func (h *Handler) PostEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	l, err := h.load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeEstimate(w, r, l, req.Item)
}

func (h *Handler) writeEstimate(w http.ResponseWriter, r *http.Request, l *loaded, v any) {
	items, err := canonicalizeAll(l.codec, []any{v})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	item := items[0]

	resp := JSON{"name": l.rec.Name}
	switch s := l.sketch.(type) {
	case *sketches.CmsTopN:
		f, err := s.Frequency(item)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp["frequency"] = f
	case *sketches.CountMinSketch:
		resp["frequency"] = s.Query(item)
	case *sketches.MinMaskSketch:
		resp["mask"] = s.Mask(item)
		resp["tags"] = s.Tags(item)
	}
	writeJSON(w, http.StatusOK, resp)
}

type TopNEntry struct {
	Item      any    `json:"item"`
	Frequency uint64 `json:"frequency"`
}

func (h *Handler) GetTopN(w http.ResponseWriter, r *http.Request) {
	l, err := h.load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, ok := l.sketch.(*sketches.CmsTopN)
	if !ok {
		h.fail(w, r, fmt.Errorf("%s sketches do not track top items: %w", l.rec.Type, errBadRequest))
		return
	}

	entries := s.TopN()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(w, r, fmt.Errorf("invalid limit %q: %w", raw, errBadRequest))
			return
		}
		entries = entries[:min(limit, len(entries))]
	}

	out := make([]TopNEntry, len(entries))
	for i, e := range entries {
		out[i] = TopNEntry{Item: displayValue(e.Item.Type, e.Item.Bytes), Frequency: e.Frequency}
	}
	writeJSON(w, http.StatusOK, JSON{
		"name":          l.rec.Name,
		"item_type":     s.ItemType(),
		"min_frequency": s.MinFrequency(),
		"topn":          out,
	})
}

type UnionRequest struct {
	Other string `json:"other"`
}

// PostUnion merges the sketch named in the body into the sketch of the path.
// The other sketch is left unchanged.
func (h *Handler) PostUnion(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req UnionRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Other == "" {
		h.fail(w, r, fmt.Errorf("other required: %w", errBadRequest))
		return
	}

	unlock := h.locks.lock(name, req.Other)
	defer unlock()

	dst, err := h.load(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	src, err := h.load(r.Context(), req.Other)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	merged, err := union(dst, src)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dst.rec.Data = merged.Serialize()
	if err := h.store.Upsert(r.Context(), dst.rec); err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.IncUnions()
	logFor(r).WithFields(logger.Fields{"sketch": name, "other": req.Other}).Info("sketches merged")
	writeJSON(w, http.StatusOK, describe(dst.rec, merged))
}

func union(dst, src *loaded) (sketches.Sketch, error) {
	if dst.rec.Type != src.rec.Type {
		return nil, fmt.Errorf("cannot merge %s into %s: %w", src.rec.Type, dst.rec.Type, sketches.ErrConfiguration)
	}
	if dst.codec.TypeID() != src.codec.TypeID() {
		return nil, fmt.Errorf("cannot merge %s items into %s items: %w", src.codec.TypeID(), dst.codec.TypeID(), sketches.ErrTypeMismatch)
	}

	switch a := dst.sketch.(type) {
	case *sketches.CmsTopN:
		return sketches.Union(a, src.sketch.(*sketches.CmsTopN))
	case *sketches.CountMinSketch:
		return a, a.Merge(src.sketch.(*sketches.CountMinSketch))
	case *sketches.MinMaskSketch:
		return a, a.Merge(src.sketch.(*sketches.MinMaskSketch))
	default:
		return nil, fmt.Errorf("unsupported sketch type %q: %w", dst.rec.Type, sketches.ErrConfiguration)
	}
}

// loaded is a stored sketch decoded for one request.
type loaded struct {
	rec    *storage.Record
	sketch sketches.Sketch
	codec  sketches.Codec
}

func (h *Handler) load(ctx context.Context, name string) (*loaded, error) {
	rec, err := h.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s, err := rec.Sketch()
	if err != nil {
		return nil, fmt.Errorf("sketch %q: %v: %w", name, err, storage.ErrCorrupt)
	}
	codec, err := codecFor(rec.Parameters)
	if err != nil {
		return nil, fmt.Errorf("sketch %q: %v: %w", name, err, storage.ErrCorrupt)
	}
	return &loaded{rec: rec, sketch: s, codec: codec}, nil
}

func canonicalizeAll(codec sketches.Codec, values []any) ([]sketches.Item, error) {
	items := make([]sketches.Item, len(values))
	for i, v := range values {
		if v == nil {
			return nil, fmt.Errorf("item %d is null: %w", i, errBadRequest)
		}
		item, err := sketches.NewItem(codec, v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %v: %w", i, err, errBadRequest)
		}
		items[i] = item
	}
	return items, nil
}

func describe(rec *storage.Record, s sketches.Sketch) JSON {
	info := s.Info()
	out := JSON{
		"name":        rec.Name,
		"type":        rec.Type,
		"parameters":  rec.Parameters,
		"info":        info,
		"description": info.String(),
	}
	if t, ok := s.(*sketches.CmsTopN); ok {
		out["item_type"] = t.ItemType()
		out["tracked"] = t.Len()
		out["min_frequency"] = t.MinFrequency()
		out["item_byte_budget"] = t.ItemByteBudget()
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %v: %w", err, errBadRequest)
	}
	return nil
}

var clientErrors = []error{
	errBadRequest,
	sketches.ErrConfiguration,
	sketches.ErrTypeMismatch,
	sketches.ErrUnsupportedItem,
	sketches.ErrInvalidEncoding,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrCorrupt):
		return http.StatusInternalServerError
	case slices.ContainsFunc(clientErrors, func(target error) bool { return errors.Is(err, target) }):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logFor(r).WithError(err).Error("request failed")
	}
	writeJSON(w, status, JSON{"error": err.Error()})
}
