// Пакет httpapi — HTTP-транспорт кассового терминала поверх gin.
// Транспорт сериализует доступ к машине корзины мьютексом: ядро корзины
// рассчитано на одного логического владельца и не имеет своих блокировок.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/service/cart"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
)

// Handler группирует зависимости HTTP-слоя кассы.
type Handler struct {
	mu        sync.Mutex
	machine   *cart.Machine
	finalizer *checkout.Finalizer
	products  domain.ProductReader
	customers domain.CustomerReader
	sales     domain.SaleRepository
	journal   domain.JournalRepository
	validator *validatorv10.Validate
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics
}

// HandlerConfig — параметры создания Handler.
type HandlerConfig struct {
	Machine   *cart.Machine
	Finalizer *checkout.Finalizer
	Products  domain.ProductReader
	Customers domain.CustomerReader
	Sales     domain.SaleRepository
	Journal   domain.JournalRepository
	Logger    *log.Entry
	Metrics   *metrics.CheckoutMetrics
}

// NewHandler создаёт HTTP handler кассы.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{
		machine:   cfg.Machine,
		finalizer: cfg.Finalizer,
		products:  cfg.Products,
		customers: cfg.Customers,
		sales:     cfg.Sales,
		journal:   cfg.Journal,
		validator: newValidator(),
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

// RegisterRoutes регистрирует маршруты кассового API.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/cart", h.getCart)
	r.POST("/cart/lines", h.addLine)
	r.PUT("/cart/lines/:productID", h.setQuantity)
	r.DELETE("/cart/lines/:productID", h.removeLine)
	r.PUT("/cart/lines/:productID/discount", h.setLineDiscount)
	r.PUT("/cart/discount", h.setOrderDiscount)
	r.PUT("/cart/customer", h.selectCustomer)
	r.PUT("/cart/tender", h.setTender)
	r.POST("/cart/clear", h.clearCart)

	r.POST("/checkout", h.checkoutSale)

	r.GET("/sales", h.listSales)
	r.GET("/sales/:receiptID", h.getSale)
	r.GET("/sales/:receiptID/journal", h.getJournal)
}

func (h *Handler) addLine(c *gin.Context) {
	var req addLineRequest
	if err := bindAndValidate(c, &req, h.validator); err != nil {
		return
	}

	// Снапшот читается непосредственно перед мутацией: стоковая проверка
	// в машине опирается на его свежесть.
	product, err := h.products.ReadProduct(c.Request.Context(), req.ProductID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.mu.Lock()
	mutation, err := h.machine.AddLine(product, req.Quantity)
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.recordMutation("add_line")
	c.JSON(http.StatusOK, h.mutationView(mutation))
}

func (h *Handler) setQuantity(c *gin.Context) {
	var req setQuantityRequest
	if err := bindAndValidate(c, &req, h.validator); err != nil {
		return
	}

	h.mu.Lock()
	mutation, err := h.machine.SetQuantity(c.Param("productID"), req.Quantity)
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.recordMutation("set_quantity")
	c.JSON(http.StatusOK, h.mutationView(mutation))
}

func (h *Handler) removeLine(c *gin.Context) {
	h.mu.Lock()
	mutation, err := h.machine.RemoveLine(c.Param("productID"))
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.recordMutation("remove_line")
	c.JSON(http.StatusOK, h.mutationView(mutation))
}

func (h *Handler) setLineDiscount(c *gin.Context) {
	var req discountRequest
	if err := bindAndValidate(c, &req, h.validator); err != nil {
		return
	}
	discount, err := req.toDomain()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.mu.Lock()
	mutation, err := h.machine.SetLineDiscount(c.Param("productID"), discount)
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.recordMutation("set_line_discount")
	c.JSON(http.StatusOK, h.mutationView(mutation))
}

func (h *Handler) setOrderDiscount(c *gin.Context) {
	var req discountRequest
	if err := bindAndValidate(c, &req, h.validator); err != nil {
		return
	}
	discount, err := req.toDomain()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.mu.Lock()
	mutation, err := h.machine.SetOrderDiscount(discount)
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.recordMutation("set_order_discount")
	c.JSON(http.StatusOK, h.mutationView(mutation))
}

func (h *Handler) selectCustomer(c *gin.Context) {
	var req selectCustomerRequest
	if err := bindAndValidate(c, &req, h.validator); err != nil {
		return
	}

	var customer *domain.CustomerSnapshot
	if req.CustomerID != "" {
		fresh, err := h.customers.ReadCustomer(c.Request.Context(), req.CustomerID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		customer = &fresh
	}

	h.mu.Lock()
	mutation, err := h.machine.SelectCustomer(customer)
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.recordMutation("select_customer")
	c.JSON(http.StatusOK, h.mutationView(mutation))
}

func (h *Handler) setTender(c *gin.Context) {
	var req setTenderRequest
	if err := bindAndValidate(c, &req, h.validator); err != nil {
		return
	}

	h.mu.Lock()
	mutation, err := h.machine.SetTender(domain.TenderMethod(req.Tender))
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.recordMutation("set_tender")
	c.JSON(http.StatusOK, h.mutationView(mutation))
}

func (h *Handler) clearCart(c *gin.Context) {
	h.mu.Lock()
	h.machine.Clear()
	h.mu.Unlock()

	h.recordMutation("clear")
	c.Status(http.StatusNoContent)
}

func (h *Handler) getCart(c *gin.Context) {
	h.mu.Lock()
	snapshot := h.machine.Cart()
	totals := h.machine.Totals()
	state := h.machine.State()
	h.mu.Unlock()

	c.JSON(http.StatusOK, cartView(snapshot, totals, state))
}

func (h *Handler) checkoutSale(c *gin.Context) {
	var req checkoutRequest
	if err := bindAndValidate(c, &req, h.validator); err != nil {
		return
	}

	h.mu.Lock()
	sale, err := h.finalizer.Finalize(c.Request.Context(), h.machine, req.TenderedMinor)
	h.mu.Unlock()
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, saleView(sale))
}

func (h *Handler) getSale(c *gin.Context) {
	sale, err := h.sales.Get(c.Request.Context(), c.Param("receiptID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saleView(sale))
}

func (h *Handler) listSales(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	sales, err := h.sales.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	views := make([]gin.H, 0, len(sales))
	for _, sale := range sales {
		views = append(views, saleView(sale))
	}
	c.JSON(http.StatusOK, gin.H{"sales": views})
}

func (h *Handler) getJournal(c *gin.Context) {
	events, err := h.journal.List(c.Param("receiptID"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	views := make([]gin.H, 0, len(events))
	for _, event := range events {
		views = append(views, gin.H{
			"id":         event.ID,
			"receipt_id": event.ReceiptID,
			"type":       event.Type,
			"detail":     event.Detail,
			"occurred":   event.Occurred.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": views})
}

func (h *Handler) recordMutation(op string) {
	if h.metrics != nil {
		h.metrics.RecordCartMutation(op)
	}
}

// writeError переводит структурные ошибки ядра в HTTP-ответы. Конфликты
// стока и кредита несут полный контекст для оператора.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		conflict *domain.StockConflictError
		credit   *domain.CreditError
		payment  *domain.InsufficientPaymentError
	)

	switch {
	case errors.As(err, &conflict):
		conflicts := make([]gin.H, 0, len(conflict.Conflicts))
		for _, shortfall := range conflict.Conflicts {
			conflicts = append(conflicts, gin.H{
				"product_id": shortfall.ProductID,
				"requested":  shortfall.Requested,
				"available":  shortfall.Available,
			})
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":     "stock_conflict",
			"conflicts": conflicts,
		})
	case errors.As(err, &credit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           "credit_declined",
			"reason":          string(credit.Reason),
			"shortfall_minor": credit.ShortfallMinor,
		})
	case errors.As(err, &payment):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":          "insufficient_payment",
			"required_minor": payment.RequiredMinor,
			"tendered_minor": payment.TenderedMinor,
		})
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrDuplicateReceipt):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrLineNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrSaleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidDiscount),
		errors.Is(err, domain.ErrInvalidTender):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPersistenceFailure):
		h.logger.WithError(err).Error("persistence failure")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence_failure"})
	default:
		h.logger.WithError(err).Error("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func (h *Handler) mutationView(m cart.Mutation) gin.H {
	h.mu.Lock()
	state := h.machine.State()
	h.mu.Unlock()

	return gin.H{
		"state":             string(state),
		"totals":            totalsView(m.Totals),
		"tender_downgraded": m.TenderDowngraded,
	}
}

func totalsView(t domain.Totals) gin.H {
	return gin.H{
		"line_totals_minor":    t.LineTotalsMinor,
		"subtotal_minor":       t.SubtotalMinor,
		"order_discount_minor": t.OrderDiscountMinor,
		"tax_minor":            t.TaxMinor,
		"grand_total_minor":    t.GrandTotalMinor,
	}
}

func discountView(d *domain.Discount) gin.H {
	if d == nil {
		return nil
	}
	return gin.H{
		"kind":         string(d.Kind),
		"percent_bp":   d.PercentBP,
		"amount_minor": d.AmountMinor,
	}
}

func cartView(snapshot domain.Cart, totals domain.Totals, state cart.State) gin.H {
	lines := make([]gin.H, 0, len(snapshot.Lines))
	for i, line := range snapshot.Lines {
		view := gin.H{
			"product_id":       line.Product.ID,
			"unit_price_minor": line.Product.UnitPriceMinor,
			"quantity":         line.Quantity,
			"discount":         discountView(line.Discount),
		}
		if i < len(totals.LineTotalsMinor) {
			view["line_total_minor"] = totals.LineTotalsMinor[i]
		}
		lines = append(lines, view)
	}

	view := gin.H{
		"state":          string(state),
		"lines":          lines,
		"order_discount": discountView(snapshot.OrderDiscount),
		"tender":         string(snapshot.Tender),
		"totals":         totalsView(totals),
	}
	if snapshot.Customer != nil {
		view["customer_id"] = snapshot.Customer.ID
	}
	return view
}

func saleView(sale domain.Sale) gin.H {
	lines := make([]gin.H, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		lines = append(lines, gin.H{
			"product_id":       line.ProductID,
			"quantity":         line.Quantity,
			"unit_price_minor": line.UnitPriceMinor,
			"discount_minor":   line.DiscountMinor,
			"total_minor":      line.TotalMinor,
		})
	}

	view := gin.H{
		"receipt_id":        sale.ReceiptID,
		"lines":             lines,
		"subtotal_minor":    sale.SubtotalMinor,
		"discount_minor":    sale.DiscountMinor,
		"tax_minor":         sale.TaxMinor,
		"grand_total_minor": sale.GrandTotalMinor,
		"tender":            string(sale.Tender),
		"payment_status":    string(sale.PaymentStatus),
		"created_at":        sale.CreatedAt.Format(time.RFC3339Nano),
	}
	if sale.CustomerID != "" {
		view["customer_id"] = sale.CustomerID
	}
	if sale.Tender == domain.TenderCash {
		view["tendered_minor"] = sale.TenderedMinor
		view["change_minor"] = sale.ChangeMinor
	}
	return view
}
