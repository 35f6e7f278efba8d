package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ─── Circulation ──────────────────────────────────────────────────────────────

func (h *LibraryHandler) borrow(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "card_id and copy_id are required")
		return
	}

	msg, err := h.circulation.Borrow(c.Request.Context(), req.CardID, req.CopyID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *LibraryHandler) returnCopy(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "copy_id is required")
		return
	}

	result, err := h.circulation.Return(c.Request.Context(), req.CopyID, req.IsDamaged)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"message": result.Message}
	if result.Fine != nil {
		resp["fine"] = toFineResponse(*result.Fine)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LibraryHandler) payFine(c *gin.Context) {
	id, ok := parseID(c, "fine")
	if !ok {
		return
	}

	msg, err := h.circulation.PayFine(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *LibraryHandler) listBorrowRecords(c *gin.Context) {
	cardID, ok := parseID(c, "reader")
	if !ok {
		return
	}

	records, err := h.circulation.ListBorrowRecords(c.Request.Context(), cardID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *LibraryHandler) listReaderFines(c *gin.Context) {
	cardID, ok := parseID(c, "reader")
	if !ok {
		return
	}

	fines, err := h.circulation.ListReaderFines(c.Request.Context(), cardID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toFineResponses(fines))
}

func (h *LibraryHandler) listAllFines(c *gin.Context) {
	offset, limit, ok := parsePage(c)
	if !ok {
		return
	}

	fines, err := h.circulation.ListAllFines(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toFineResponses(fines))
}
