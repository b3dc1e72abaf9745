// Package inventorytest provides an in-process fake of the inventory service
// for tests. Batches are served in the order they were added; the fake, like
// the real service, is responsible for FEFO ordering.
package inventorytest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"dentalstock/internal/core/apperror"
	"dentalstock/internal/domain/batch"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/catalogs/unit"
	"dentalstock/internal/domain/documents/export_tx"
	"dentalstock/internal/domain/documents/import_tx"
	"dentalstock/internal/infrastructure/inventoryapi/dto"
)

// Request is a request seen by the fake.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// Server is a fake inventory service.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	items    []item.InventoryItem
	units    map[int64]unit.Definition
	batches  map[int64][]batch.Batch
	imports  []import_tx.Payload
	exports  []export_tx.Payload
	requests []Request
	failNext map[string]*apperror.AppError
	token    string
}

// NewServer starts a fake service. Close it when done.
func NewServer() *Server {
	s := &Server{
		units:    make(map[int64]unit.Definition),
		batches:  make(map[int64][]batch.Batch),
		failNext: make(map[string]*apperror.AppError),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.renderErrors())
	router.Use(s.record())
	router.Use(s.auth())

	router.GET("/items", s.listItems)
	router.GET("/items/:id/units/base", s.getBaseUnit)
	router.GET("/items/:id/batches", s.listBatches)
	router.POST("/import-transactions", s.createImport)
	router.POST("/export-transactions", s.createExport)

	s.Server = httptest.NewServer(router)
	return s
}

// RequireToken makes the fake reject requests without this bearer token.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// AddItem registers an item with its base unit. The base unit is listed
// first among the item's units unless they already include one.
func (s *Server) AddItem(it item.InventoryItem, base unit.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(it.Units) > 0 && unit.BaseOf(it.Units) == nil {
		it.Units = append([]unit.Definition{base}, it.Units...)
	}
	s.items = append(s.items, it)
	s.units[it.ID] = base
}

// AddBatches appends batches of an item. They are served in this order.
func (s *Server) AddBatches(itemID int64, batches ...batch.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[itemID] = append(s.batches[itemID], batches...)
}

// SetOnHand overwrites the stock of a batch, as another operator would.
func (s *Server) SetOnHand(batchID, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.findBatchLocked(batchID); b != nil {
		b.QuantityOnHand = qty
	}
}

// FailNext makes the next request to route (e.g. "GET /items/:id/batches")
// answer with err.
func (s *Server) FailNext(route string, err *apperror.AppError) {
	s.mu.Lock()
	s.failNext[route] = err
	s.mu.Unlock()
}

// Imports returns the accepted import payloads.
func (s *Server) Imports() []import_tx.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]import_tx.Payload(nil), s.imports...)
}

// Exports returns the accepted export payloads.
func (s *Server) Exports() []export_tx.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export_tx.Payload(nil), s.exports...)
}

// Requests returns every request seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// CountRequests counts requests to a route such as "GET /items/:id/batches".
func (s *Server) CountRequests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method+" "+r.Path == route {
			n++
		}
	}
	return n
}

func (s *Server) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: c.Request.Method,
			Path:   c.FullPath(),
			Header: c.Request.Header.Clone(),
		})
		err := s.failNext[c.Request.Method+" "+c.FullPath()]
		delete(s.failNext, c.Request.Method+" "+c.FullPath())
		s.mu.Unlock()

		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()
		if token != "" && c.GetHeader("Authorization") != "Bearer "+token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Code:    apperror.CodeUnauthorized,
				Message: "missing or invalid token",
			})
			return
		}
		c.Next()
	}
}

// renderErrors writes AppErrors attached to the context as the service's
// error body.
func (s *Server) renderErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		if appErr, ok := apperror.AsAppError(err); ok {
			c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Code:    apperror.CodeInternal,
			Message: err.Error(),
		})
	}
}

func (s *Server) listItems(c *gin.Context) {
	wt := item.WarehouseType(c.Query("warehouseType"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dto.ItemResponse, 0, len(s.items))
	for i := range s.items {
		if wt != "" && s.items[i].WarehouseType != wt {
			continue
		}
		it := s.items[i]
		if _, tracked := s.batches[it.ID]; tracked {
			it.TotalQuantityOnHand = s.onHandLocked(it.ID)
		}
		out = append(out, dto.FromItem(&it))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getBaseUnit(c *gin.Context) {
	itemID, ok := parseID(c)
	if !ok {
		return
	}

	s.mu.Lock()
	def, found := s.units[itemID]
	s.mu.Unlock()
	if !found {
		c.Error(apperror.NewNotFound("item", itemID))
		return
	}
	c.JSON(http.StatusOK, dto.FromDefinition(&def))
}

func (s *Server) listBatches(c *gin.Context) {
	itemID, ok := parseID(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dto.BatchResponse, 0)
	for i := range s.batches[itemID] {
		b := s.batches[itemID][i]
		if !b.HasStock() {
			continue
		}
		out = append(out, dto.FromBatch(&b))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createImport(c *gin.Context) {
	var p import_tx.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.Error(apperror.NewValidation(err.Error()))
		return
	}
	if err := p.Validate(); err != nil {
		c.Error(apperror.NewValidation(err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range p.Items {
		s.batches[l.ItemMasterID] = append(s.batches[l.ItemMasterID], batch.Batch{
			ID:             s.nextBatchIDLocked(),
			LotNumber:      l.LotNumber,
			ExpiryDate:     l.ExpiryDate,
			QuantityOnHand: l.Quantity,
			ImportPrice:    l.PurchasePrice,
			ItemID:         l.ItemMasterID,
		})
	}
	s.imports = append(s.imports, p)
	c.JSON(http.StatusCreated, gin.H{"id": len(s.imports)})
}

func (s *Server) createExport(c *gin.Context) {
	var p export_tx.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.Error(apperror.NewValidation(err.Error()))
		return
	}
	if err := p.Validate(); err != nil {
		c.Error(apperror.NewValidation(err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// All or nothing: check every line before touching stock.
	for _, l := range p.Items {
		b := s.findBatchLocked(l.BatchID)
		if b == nil {
			c.Error(apperror.NewNotFound("batch", l.BatchID))
			return
		}
		if l.Quantity > b.QuantityOnHand {
			c.Error(apperror.NewInsufficientStock(l.BatchID, l.Quantity, b.QuantityOnHand))
			return
		}
	}
	for _, l := range p.Items {
		s.findBatchLocked(l.BatchID).QuantityOnHand -= l.Quantity
	}
	s.exports = append(s.exports, p)
	c.JSON(http.StatusCreated, gin.H{"id": len(s.exports)})
}

func (s *Server) findBatchLocked(batchID int64) *batch.Batch {
	for itemID := range s.batches {
		for i := range s.batches[itemID] {
			if s.batches[itemID][i].ID == batchID {
				return &s.batches[itemID][i]
			}
		}
	}
	return nil
}

func (s *Server) nextBatchIDLocked() int64 {
	var maxID int64
	for _, list := range s.batches {
		for _, b := range list {
			if b.ID > maxID {
				maxID = b.ID
			}
		}
	}
	return maxID + 1
}

func (s *Server) onHandLocked(itemID int64) int64 {
	var total int64
	for _, b := range s.batches[itemID] {
		total += b.QuantityOnHand
	}
	return total
}

func parseID(c *gin.Context) (int64, bool) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || itemID <= 0 {
		c.Error(apperror.NewValidation("invalid item id").WithDetail("id", c.Param("id")))
		return 0, false
	}
	return itemID, true
}
