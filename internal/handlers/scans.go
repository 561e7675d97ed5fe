package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/kartoteka-app/kartotekago/internal/models"
	"github.com/kartoteka-app/kartotekago/internal/printer"
	"github.com/kartoteka-app/kartotekago/internal/publish"
)

// getScan returns the full scan with candidates and pricing
func (rt *Router) getScan(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	scan, err := rt.store.GetScan(req.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scan)
}

// ChooseRequest selects one candidate for a scan
type ChooseRequest struct {
	CandidateID string `json:"candidate_id"`
}

// chooseCandidate sets the chosen flag on exactly one candidate; the
// clear-then-set happens atomically in the store.
func (rt *Router) chooseCandidate(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var body ChooseRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.CandidateID == "" {
		respondError(w, http.StatusBadRequest, "candidate_id is required")
		return
	}

	if err := rt.store.ChooseCandidate(req.Context(), id, body.CandidateID); err != nil {
		respondServiceError(w, err)
		return
	}

	scan, err := rt.store.GetScan(req.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, scan)
}

func (rt *Router) skipScan(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if err := rt.store.MarkSkipped(req.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(models.ScanSkipped)})
}

// publishData is the JSON carried in the multipart "data" field
type publishData struct {
	ScanID      string `json:"scan_id,omitempty"`
	CandidateID string `json:"candidate_id"`
	DryRun      bool   `json:"dry_run"`
}

// publishScan commits one scan as a marketplace product. The request is
// multipart: a "data" JSON part plus the image parts. Publishing an
// already-published scan is rejected; a dry run never changes status.
func (rt *Router) publishScan(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	if err := req.ParseMultipartForm(maxScanUpload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}

	var data publishData
	if raw := req.FormValue("data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid data JSON")
			return
		}
	}
	if data.CandidateID == "" {
		respondError(w, http.StatusBadRequest, "candidate_id is required")
		return
	}
	if data.ScanID != "" && data.ScanID != id {
		respondError(w, http.StatusBadRequest, "data.scan_id does not match URL")
		return
	}

	images := publish.Images{}
	switch req.FormValue("primary_image_source") {
	case "url":
		images.PrimaryURL = req.FormValue("primary_image_url")
	default:
		if img, err := readFilePart(req, "primary_image"); err == nil {
			images.Primary = img
		}
	}
	for i := 0; ; i++ {
		img, err := readFilePart(req, fmt.Sprintf("additional_image_%d", i))
		if err != nil {
			break
		}
		images.Additional = append(images.Additional, img)
	}

	result, err := rt.pipeline.Publish(req.Context(), id, data.CandidateID, images, data.DryRun)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if result.DryRun {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"dry_run": true,
			"payload": result.Payload,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"shoper_id": result.MarketplaceProductID,
	})
}

// scanLabel renders a PDF sleeve label for a published scan
func (rt *Router) scanLabel(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	scan, err := rt.store.GetScan(req.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if scan.Status != models.ScanPublished || scan.MarketplaceProductID == nil {
		respondError(w, http.StatusConflict, "scan is not published")
		return
	}
	chosen := scan.ChosenCandidate()
	if chosen == nil {
		respondError(w, http.StatusConflict, "scan has no chosen candidate")
		return
	}

	item := printer.LabelItem{
		ProductCode: rt.pipeline.ProductCode(chosen),
		Name:        chosen.Name,
		Price:       chosen.Pricing.FinalLocalAmount,
		Currency:    chosen.Pricing.LocalCurrency,
		QRContent:   fmt.Sprintf("%s/p/%d", rt.cfg.Shoper.BaseURL, *scan.MarketplaceProductID),
	}

	pdf, err := printer.GenerateLabelSheet([]printer.LabelItem{item}, printer.DefaultLayout())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", item.ProductCode))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// readFilePart reads one uploaded file part fully into memory
func readFilePart(req *http.Request, field string) ([]byte, error) {
	file, _, err := req.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) { _ = f.Close() }(file)
	return io.ReadAll(file)
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
