package api

import (
	"github.com/Borislavv/segment-registry/pkg/http/responder"
	"github.com/Borislavv/segment-registry/pkg/storage"
	"github.com/Borislavv/segment-registry/pkg/utils"
	"github.com/fasthttp/router"
	"github.com/samber/lo"
	"github.com/valyala/fasthttp"
)

const TablesPath = "/tables"

type tableResponse struct {
	Name     string `json:"name"`
	Segments int64  `json:"segments"`
	Weight   int64  `json:"weight"`
	Pinned   string `json:"pinned"`
}

// TablesController lists the node's tables with their live segment counts.
type TablesController struct {
	tables *storage.Tables
}

func NewTablesController(tables *storage.Tables) *TablesController {
	return &TablesController{tables: tables}
}

func (c *TablesController) List(ctx *fasthttp.RequestCtx) {
	resp := lo.FilterMap(c.tables.Names(), func(name string, _ int) (tableResponse, bool) {
		r, err := c.tables.Get(name)
		if err != nil {
			return tableResponse{}, false
		}
		weight := r.Weight()
		return tableResponse{
			Name:     name,
			Segments: r.Len(),
			Weight:   weight,
			Pinned:   utils.FmtMem(weight),
		}, true
	})
	responder.WriteJSON(ctx, fasthttp.StatusOK, resp)
}

func (c *TablesController) AddRoute(r *router.Router) {
	r.GET(TablesPath, c.List)
}
