package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/tbourn/go-menu-tracker/internal/http/middleware"
	"github.com/tbourn/go-menu-tracker/internal/services"
)

// maxBatch caps the snapshots accepted by one batch upload.
const maxBatch = 100

// BatchItemResponse is the outcome of one snapshot of a batch upload.
type BatchItemResponse struct {
	Index  int                    `json:"index"`
	Status string                 `json:"status"`
	Result *services.ImportResult `json:"result,omitempty"`
	Error  *ErrorResponse         `json:"error,omitempty"`
}

// BatchResponse reports a batch upload. It is returned with 200 even when
// some items failed; each failure is isolated to its item.
type BatchResponse struct {
	Total  int                 `json:"total"`
	Failed int                 `json:"failed"`
	Items  []BatchItemResponse `json:"items"`
}

// PostSnapshot godoc
// @ID          postSnapshot
// @Summary     Import a menu snapshot
// @Description Validates one scraped snapshot and reconciles it into the catalog in a single transaction.
// @Description A rejected snapshot writes nothing; an aborted import leaves only its failed session row.
// @Tags        Imports
// @Accept      json
// @Produce     json
//
// @Param       body  body  object  true  "Snapshot document"
//
// @Success     201  {object} services.ImportResult
// @Failure     400  {object} handlers.ErrorResponse "Empty or unreadable body"
// @Failure     413  {object} handlers.ErrorResponse "Body too large"
// @Failure     422  {object} handlers.ErrorResponse "Invalid snapshot or unknown scraper"
// @Failure     500  {object} handlers.ErrorResponse "Import aborted"
// @Failure     503  {object} handlers.ErrorResponse "Request cancelled or timed out"
// @Router      /snapshots [post]
func (h *Handlers) PostSnapshot(c *gin.Context) {
	raw, read := readBody(c)
	if !read {
		return
	}
	res, err := h.imp.Import(c.Request.Context(), raw)
	if err != nil && res == nil {
		status, code, details := classify(err)
		failWith(c, status, code, err.Error(), details)
		return
	}
	if err != nil {
		// Data is committed; only the session bookkeeping failed.
		middleware.LoggerFrom(c).Warn().Err(err).Str("session_id", res.SessionID).Msg("import committed with session error")
		c.Header("Warning", `199 - "`+ErrCodeFinalize+`"`)
	}
	c.Header("Location", "sessions/"+res.SessionID)
	ok(c, http.StatusCreated, res)
}

// PostSnapshotBatch godoc
// @ID          postSnapshotBatch
// @Summary     Import a batch of menu snapshots
// @Description Imports each snapshot of a JSON array independently. A failed item never affects the others.
// @Tags        Imports
// @Accept      json
// @Produce     json
//
// @Param       body  body  []object  true  "Snapshot documents"
//
// @Success     200  {object} handlers.BatchResponse
// @Failure     400  {object} handlers.ErrorResponse "Body is not a non-empty JSON array"
// @Failure     413  {object} handlers.ErrorResponse "Body or batch too large"
// @Router      /snapshots/batch [post]
func (h *Handlers) PostSnapshotBatch(c *gin.Context) {
	raw, read := readBody(c)
	if !read {
		return
	}
	if !gjson.ValidBytes(raw) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body is not valid JSON")
		return
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "batch body must be a JSON array of snapshots")
		return
	}
	elems := doc.Array()
	if len(elems) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "batch is empty")
		return
	}
	if len(elems) > maxBatch {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "batch exceeds "+strconv.Itoa(maxBatch)+" snapshots")
		return
	}
	raws := make([][]byte, len(elems))
	for i, e := range elems {
		raws[i] = []byte(e.Raw)
	}

	items := h.imp.ImportMany(c.Request.Context(), raws)
	resp := BatchResponse{Total: len(items), Failed: services.Failed(items), Items: make([]BatchItemResponse, len(items))}
	rid := middleware.RequestIDFrom(c)
	for i, it := range items {
		out := BatchItemResponse{Index: it.Index, Result: it.Result}
		if it.Err != nil {
			_, code, details := classify(it.Err)
			out.Status = "failed"
			out.Error = &ErrorResponse{RequestID: rid, Code: code, Message: it.Err.Error(), Details: details}
		} else {
			out.Status = it.Result.Status
		}
		resp.Items[i] = out
	}
	middleware.LoggerFrom(c).Info().Int("total", resp.Total).Int("failed", resp.Failed).Msg("batch import")
	ok(c, http.StatusOK, resp)
}

func readBody(c *gin.Context) ([]byte, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "body exceeds "+strconv.FormatInt(tooBig.Limit, 10)+" bytes")
			return nil, false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read body")
		return nil, false
	}
	if len(raw) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "empty body")
		return nil, false
	}
	return raw, true
}

// classify maps an import error to status, code and details. An unknown
// scraper is checked before the abort wrapper that carries it, and a
// cancelled or timed out request before the abort it caused.
func classify(err error) (int, string, any) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		if len(ve.Missing) > 0 {
			return http.StatusUnprocessableEntity, ErrCodeValidation, gin.H{"missing": ve.Missing}
		}
		return http.StatusUnprocessableEntity, ErrCodeValidation, nil
	}

	var abort *services.TransactionAbortError
	hasAbort := errors.As(err, &abort)

	var us *services.UnknownScraperError
	if errors.As(err, &us) {
		d := gin.H{"domain": us.Domain}
		if hasAbort {
			d["session_id"] = abort.SessionID
		}
		return http.StatusUnprocessableEntity, ErrCodeUnknownScraper, d
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if hasAbort {
			return http.StatusServiceUnavailable, ErrCodeImportAborted, gin.H{"session_id": abort.SessionID, "phase": abort.Phase}
		}
		return http.StatusServiceUnavailable, ErrCodeInternal, nil
	}
	if hasAbort {
		return http.StatusInternalServerError, ErrCodeImportAborted, gin.H{"session_id": abort.SessionID, "phase": abort.Phase}
	}
	return http.StatusInternalServerError, ErrCodeInternal, nil
}
