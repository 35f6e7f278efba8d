package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"circulation/internal/services"
)

// Dependencies are the services and optional middleware the HTTP layer needs.
type Dependencies struct {
	Circulation services.CirculationService
	Catalog     services.CatalogService
	Auth        services.AuthService

	// Authenticate guards every route except /health and /login; nil leaves them open.
	Authenticate gin.HandlerFunc
	// LoginThrottle wraps /login; nil disables throttling.
	LoginThrottle gin.HandlerFunc
}

type LibraryHandler struct {
	circulation services.CirculationService
	catalog     services.CatalogService
	auth        services.AuthService
}

func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	h := &LibraryHandler{
		circulation: deps.Circulation,
		catalog:     deps.Catalog,
		auth:        deps.Auth,
	}

	r.GET("/health", h.health)
	r.POST("/login", chain(deps.LoginThrottle, h.login)...)

	api := r.Group("/")
	if deps.Authenticate != nil {
		api.Use(deps.Authenticate)
	}

	// Circulation
	api.POST("/borrow", h.borrow)
	api.POST("/return", h.returnCopy)
	api.GET("/readers/:id/borrow-records", h.listBorrowRecords)
	api.GET("/readers/:id/fines", h.listReaderFines)
	api.GET("/fines", h.listAllFines)
	api.POST("/fines/:id/pay", h.payFine)

	// Catalog
	api.POST("/readers", h.createReader)
	api.GET("/readers", h.listReaders)
	api.PUT("/readers/:id", h.updateReader)
	api.DELETE("/readers/:id", h.deleteReader)

	api.POST("/publishers", h.createPublisher)
	api.GET("/publishers", h.listPublishers)
	api.PUT("/publishers/:id", h.updatePublisher)
	api.DELETE("/publishers/:id", h.deletePublisher)

	api.POST("/books", h.createBook)
	api.GET("/books", h.listBooks)
	api.PUT("/books/:isbn", h.updateBook)
	api.DELETE("/books/:isbn", h.deleteBook)

	api.POST("/copies", h.addCopy)
	api.GET("/copies", h.listCopies)
	api.PUT("/copies/:id", h.reassignCopy)
	api.POST("/copies/:id/lost", h.markCopyLost)
	api.DELETE("/copies/:id", h.deleteCopy)
}

func (h *LibraryHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func chain(mw gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if mw == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{mw, handler}
}

// statusFor maps a service error category onto an HTTP status.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindRejected, services.KindInvalid:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": reason, "category": kind}. Internal causes
// never reach the client.
func writeError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	c.JSON(statusFor(kind), gin.H{
		"error":    services.ReasonOf(err),
		"category": kind,
	})
}

func badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":    reason,
		"category": services.KindInvalid,
	})
}

func parseID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

func parsePage(c *gin.Context) (offset, limit int, ok bool) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "invalid offset")
		return 0, 0, false
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return 0, 0, false
	}
	return offset, limit, true
}
