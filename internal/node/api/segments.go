package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Borislavv/segment-registry/pkg/config"
	"github.com/Borislavv/segment-registry/pkg/http/responder"
	"github.com/Borislavv/segment-registry/pkg/loader"
	"github.com/Borislavv/segment-registry/pkg/segment"
	"github.com/Borislavv/segment-registry/pkg/storage"
	"github.com/Borislavv/segment-registry/pkg/storage/table"
	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/valyala/fasthttp"
)

const (
	SegmentsPath = "/tables/{table}/segments"
	SegmentPath  = "/tables/{table}/segments/{segment}"

	protocolTwoStep = "two-step"
	loadTimeout     = 30 * time.Second
)

// SegmentLoader brings a named segment of a table into memory.
type SegmentLoader interface {
	Load(ctx context.Context, table config.Table, name string) (segment.Segment, error)
}

type segmentResponse struct {
	Name     string `json:"name"`
	RefCount int32  `json:"refCount"`
	Weight   int64  `json:"weight"`
}

type segmentsResponse struct {
	Table    string            `json:"table"`
	Segments []segmentResponse `json:"segments"`
}

type mutationResponse struct {
	Table     string `json:"table"`
	Segment   string `json:"segment"`
	Action    string `json:"action"`
	Teardown  string `json:"teardownError,omitempty"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// SegmentsController exposes the topology operations of the registries.
type SegmentsController struct {
	ctx    context.Context
	cfg    *config.Config
	tables *storage.Tables
	loader SegmentLoader
}

func NewSegmentsController(ctx context.Context, cfg *config.Config, tables *storage.Tables, loader SegmentLoader) *SegmentsController {
	return &SegmentsController{ctx: ctx, cfg: cfg, tables: tables, loader: loader}
}

// List acquires every mapped segment of a table, reports it and releases it right away.
// Reported refcounts include the registry's reference and the one held by this request.
func (c *SegmentsController) List(ctx *fasthttp.RequestCtx) {
	reg, err := c.tables.Get(userValue(ctx, "table"))
	if err != nil {
		responder.Error(ctx, fasthttp.StatusNotFound, err)
		return
	}

	handles := reg.AcquireAll()
	resp := segmentsResponse{
		Table: reg.Name(),
		Segments: lo.Map(handles, func(h segment.Handle, _ int) segmentResponse {
			return segmentResponse{Name: h.Name(), RefCount: h.Entry().RefCount(), Weight: h.Entry().Weight()}
		}),
	}
	if err = reg.ReleaseAll(handles); err != nil {
		log.Error().Err(err).Str("table", reg.Name()).Msg("[api] release after listing failed")
	}

	responder.WriteJSON(ctx, fasthttp.StatusOK, resp)
}

// Put loads the segment file and installs it. An existing name is replaced in place
// unless ?protocol=two-step asks for remove-then-add (optionally with ?pause=<duration>).
func (c *SegmentsController) Put(ctx *fasthttp.RequestCtx) {
	from := time.Now()
	tableName, name := userValue(ctx, "table"), userValue(ctx, "segment")

	reg, err := c.tables.Get(tableName)
	if err != nil {
		responder.Error(ctx, fasthttp.StatusNotFound, err)
		return
	}
	tableCfg, ok := c.cfg.Table(tableName)
	if !ok {
		responder.Error(ctx, fasthttp.StatusNotFound, fmt.Errorf("%w: %s", storage.ErrTableNotFound, tableName))
		return
	}

	twoStep := string(ctx.QueryArgs().Peek("protocol")) == protocolTwoStep
	var pause time.Duration
	if raw := ctx.QueryArgs().Peek("pause"); len(raw) > 0 {
		if pause, err = time.ParseDuration(string(raw)); err != nil {
			responder.Error(ctx, fasthttp.StatusBadRequest, fmt.Errorf("invalid pause: %w", err))
			return
		}
	}

	loadCtx, cancel := context.WithTimeout(c.ctx, loadTimeout)
	defer cancel()

	seg, err := c.loader.Load(loadCtx, tableCfg, name)
	if err != nil {
		responder.Error(ctx, loadErrorStatus(err), err)
		return
	}

	_, existed := reg.RefCount(name)
	action := "added"
	if twoStep {
		err = reg.ReplaceTwoStep(name, seg, pause)
		if existed {
			action = "replaced-two-step"
		}
	} else {
		err = reg.Add(name, seg)
		if existed {
			action = "replaced"
		}
	}

	if errors.Is(err, table.ErrWrongState) {
		// the registry never took ownership
		if derr := seg.Destroy(); derr != nil {
			log.Error().Err(derr).Str("table", tableName).Str("segment", name).Msg("[api] destroy of rejected segment failed")
		}
		responder.Error(ctx, fasthttp.StatusConflict, err)
		return
	}

	resp := mutationResponse{Table: tableName, Segment: name, Action: action, ElapsedMs: time.Since(from).Milliseconds()}
	if err != nil {
		log.Error().Err(err).Str("table", tableName).Str("segment", name).Msg("[api] teardown of replaced segment failed")
		resp.Teardown = err.Error()
	}

	status := fasthttp.StatusCreated
	if existed {
		status = fasthttp.StatusOK
	}
	responder.WriteJSON(ctx, status, resp)
}

// Delete unmaps the segment. Unknown names succeed as well.
func (c *SegmentsController) Delete(ctx *fasthttp.RequestCtx) {
	from := time.Now()
	tableName, name := userValue(ctx, "table"), userValue(ctx, "segment")

	reg, err := c.tables.Get(tableName)
	if err != nil {
		responder.Error(ctx, fasthttp.StatusNotFound, err)
		return
	}

	err = reg.Remove(name)
	if errors.Is(err, table.ErrWrongState) {
		responder.Error(ctx, fasthttp.StatusConflict, err)
		return
	}

	resp := mutationResponse{Table: tableName, Segment: name, Action: "removed", ElapsedMs: time.Since(from).Milliseconds()}
	if err != nil {
		log.Error().Err(err).Str("table", tableName).Str("segment", name).Msg("[api] teardown of removed segment failed")
		resp.Teardown = err.Error()
	}
	responder.WriteJSON(ctx, fasthttp.StatusOK, resp)
}

func (c *SegmentsController) AddRoute(r *router.Router) {
	r.GET(SegmentsPath, c.List)
	r.PUT(SegmentPath, c.Put)
	r.DELETE(SegmentPath, c.Delete)
}

func loadErrorStatus(err error) int {
	switch {
	case errors.Is(err, loader.ErrInvalidSegmentName):
		return fasthttp.StatusBadRequest
	case errors.Is(err, loader.ErrSegmentNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fasthttp.StatusServiceUnavailable
	default:
		return fasthttp.StatusInternalServerError
	}
}

func userValue(ctx *fasthttp.RequestCtx, key string) string {
	v, _ := ctx.UserValue(key).(string)
	return v
}
