package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/api/middleware"
	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/ledger"
	"github.com/dvloznov/devfinance/internal/metrics"
	"github.com/dvloznov/devfinance/internal/storage"
	"github.com/dvloznov/devfinance/internal/transfer"
)

// maxImportBytes caps import payloads.
const maxImportBytes = 10 << 20

// TransferHandler handles import and export endpoints.
type TransferHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(led *ledger.Store, log zerolog.Logger) *TransferHandler {
	return &TransferHandler{ledger: led, log: log}
}

// ImportJSON handles POST /api/import/json?mode=merge|replace
func (h *TransferHandler) ImportJSON(w http.ResponseWriter, r *http.Request) {
	mode := ledger.ImportMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = ledger.ModeMerge
	}

	body, err := readBody(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := transfer.ParseBackup(body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ledger.ImportData(snap, mode); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "imported",
		"mode":         mode,
		"transactions": len(snap.Transactions),
	})
}

// ImportCSV handles POST /api/import/csv
func (h *TransferHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	txs, skipped, err := transfer.ParseCSV(http.MaxBytesReader(w, r.Body, maxImportBytes), h.ledger.Catalog(), h.log)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ledger.ImportData(ledger.Snapshot{Transactions: txs}, ledger.ModeMerge); err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store imported rows")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{
		"imported": len(txs),
		"skipped":  skipped,
	})
}

// ExportJSON handles GET /api/export/json
func (h *TransferHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	out, err := transfer.ExportJSON(h.ledger.Snapshot(), time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to export backup")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export backup")
		return
	}

	serveDownload(w, out, "application/json",
		fmt.Sprintf("devfinance_backup_%s.json", time.Now().Format("2006-01-02")))
}

// ExportCSV handles GET /api/export/csv
func (h *TransferHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	out := transfer.ExportCSV(h.ledger.Transactions())
	serveDownload(w, out, "text/csv",
		fmt.Sprintf("devfinance_transactions_%s.csv", time.Now().Format("2006-01-02")))
}

// ExportReport handles GET /api/export/report
func (h *TransferHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	catalog := h.ledger.Catalog()
	txs := h.ledger.Transactions()

	out, err := transfer.HTMLReport(
		metrics.Dashboard(txs, catalog, now),
		metrics.Summary(txs, h.ledger.Debts(), catalog, now),
		now,
	)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to render report")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxImportBytes {
		return nil, fmt.Errorf("payload too large")
	}
	return body, nil
}

func serveDownload(w http.ResponseWriter, data []byte, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ProfileHandler mirrors the signed-in identity into the local profile
// cache so the UI can render it offline.
type ProfileHandler struct {
	storage *storage.Store
	log     zerolog.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(st *storage.Store, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{storage: st, log: log}
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	var profile domain.UserProfile
	found, err := h.storage.Get(storage.KeyUserProfile, &profile)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read profile")
		return
	}
	if !found {
		middleware.WriteError(w, http.StatusNotFound, "No profile stored")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, profile)
}

// Put handles PUT /api/profile
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	var profile domain.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if profile.Email == "" {
		middleware.WriteError(w, http.StatusBadRequest, "email is required")
		return
	}
	profile.UpdatedAt = time.Now()

	if err := h.storage.Put(storage.KeyUserProfile, profile); err != nil {
		h.log.Error().Err(err).Msg("Failed to store profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store profile")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, profile)
}

// Delete handles DELETE /api/profile (sign-out).
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Delete(storage.KeyUserProfile); err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to clear profile")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
