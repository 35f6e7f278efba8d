package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"circulation/internal/models"
)

// ─── Readers ──────────────────────────────────────────────────────────────────

func (h *LibraryHandler) createReader(c *gin.Context) {
	var req readerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and category are required")
		return
	}

	reader, err := h.catalog.CreateReader(c.Request.Context(), req.Name, models.ReaderCategory(req.Category))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reader)
}

func (h *LibraryHandler) listReaders(c *gin.Context) {
	offset, limit, ok := parsePage(c)
	if !ok {
		return
	}

	readers, err := h.catalog.ListReaders(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, readers)
}

func (h *LibraryHandler) updateReader(c *gin.Context) {
	cardID, ok := parseID(c, "reader")
	if !ok {
		return
	}
	var req readerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and category are required")
		return
	}

	reader, err := h.catalog.UpdateReader(c.Request.Context(), cardID, req.Name, models.ReaderCategory(req.Category))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reader)
}

func (h *LibraryHandler) deleteReader(c *gin.Context) {
	cardID, ok := parseID(c, "reader")
	if !ok {
		return
	}
	if err := h.catalog.DeleteReader(c.Request.Context(), cardID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Publishers ───────────────────────────────────────────────────────────────

func (h *LibraryHandler) createPublisher(c *gin.Context) {
	var req publisherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	publisher, err := h.catalog.CreatePublisher(c.Request.Context(), req.Name, req.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, publisher)
}

func (h *LibraryHandler) listPublishers(c *gin.Context) {
	publishers, err := h.catalog.ListPublishers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publishers)
}

func (h *LibraryHandler) updatePublisher(c *gin.Context) {
	id, ok := parseID(c, "publisher")
	if !ok {
		return
	}
	var req publisherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}

	publisher, err := h.catalog.UpdatePublisher(c.Request.Context(), id, req.Name, req.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, publisher)
}

func (h *LibraryHandler) deletePublisher(c *gin.Context) {
	id, ok := parseID(c, "publisher")
	if !ok {
		return
	}
	if err := h.catalog.DeletePublisher(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Books ────────────────────────────────────────────────────────────────────

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "isbn, title, author and publisher_id are required")
		return
	}

	book, err := h.catalog.CreateBook(c.Request.Context(), req.input(req.ISBN))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookResponse(*book))
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.catalog.ListBooks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]bookResponse, 0, len(books))
	for _, b := range books {
		resp = append(resp, toBookResponse(b))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	isbn := c.Param("isbn")
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "title, author and publisher_id are required")
		return
	}

	book, err := h.catalog.UpdateBook(c.Request.Context(), isbn, req.input(isbn))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookResponse(*book))
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	if err := h.catalog.DeleteBook(c.Request.Context(), c.Param("isbn")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Copies ───────────────────────────────────────────────────────────────────

func (h *LibraryHandler) addCopy(c *gin.Context) {
	var req copyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "isbn is required")
		return
	}

	cp, err := h.catalog.AddCopy(c.Request.Context(), req.ISBN)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

func (h *LibraryHandler) listCopies(c *gin.Context) {
	copies, err := h.catalog.ListCopies(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, copies)
}

func (h *LibraryHandler) reassignCopy(c *gin.Context) {
	id, ok := parseID(c, "copy")
	if !ok {
		return
	}
	var req copyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "isbn is required")
		return
	}

	cp, err := h.catalog.ReassignCopy(c.Request.Context(), id, req.ISBN)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (h *LibraryHandler) markCopyLost(c *gin.Context) {
	id, ok := parseID(c, "copy")
	if !ok {
		return
	}

	cp, err := h.catalog.MarkCopyLost(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (h *LibraryHandler) deleteCopy(c *gin.Context) {
	id, ok := parseID(c, "copy")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCopy(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
