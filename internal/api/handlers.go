package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rikiramadhan1028/NEW-ART/internal/archive"
	"github.com/rikiramadhan1028/NEW-ART/internal/auth"
	"github.com/rikiramadhan1028/NEW-ART/internal/catalog"
	"github.com/rikiramadhan1028/NEW-ART/internal/metadata"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
)

// Job directory layout under DataDir.
const (
	inputDirName     = "input_layers"
	outputDirName    = "generated_output"
	rewriteDirName   = "updated_metadata"
	statusInProgress = "IN PROGRESS"
)

// ---------------------------------------------------------------------------
// POST /api/generate
// ---------------------------------------------------------------------------

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if l := s.opts.GenerateLimiter; l != nil && !l.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many generation requests, try again shortly")
		return
	}
	if !s.parseForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	count, err := strconv.Atoi(strings.TrimSpace(r.FormValue("nftCount")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "nftCount: must be a positive integer")
		return
	}
	req, err := model.NewJobRequest(model.JobRequest{
		Count:                 count,
		CollectionName:        r.FormValue("collectionName"),
		CollectionDescription: r.FormValue("collectionDescription"),
		BaseImageURL:          r.FormValue("baseIpfsImageUrl"),
		ExternalURL:           r.FormValue("baseExternalUrl"),
		UserAddress:           r.FormValue("userAddress"),
		CompressImages:        r.FormValue("compressImages") == "true",
		OutputFormat:          r.FormValue("outputFormat"),
	}, s.opts.MaxItems)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("assetsZip")
	if err != nil {
		writeError(w, http.StatusBadRequest, "assetsZip: a zip file of trait layers is required")
		return
	}
	defer file.Close()

	if err := auth.Check(r.Context(), s.opts.Authorizer, req.UserAddress); err != nil {
		if errors.Is(err, auth.ErrNotWhitelisted) {
			slog.Warn("generation attempt by non-whitelisted address", "user_address", req.UserAddress)
			writeError(w, http.StatusForbidden, "Your wallet is not whitelisted to generate NFTs. Please contact the owner.")
			return
		}
		slog.Error("whitelist check failed", "user_address", req.UserAddress, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to verify whitelist status. Please try again later.")
		return
	}

	if !archive.IsZip(header.Filename, header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "Uploaded file must be a .zip archive.")
		return
	}

	jobID := "gen-" + uuid.New().String()
	log := slog.With("job_id", jobID)
	jobDir := filepath.Join(s.opts.DataDir, jobID)
	uploadDir := filepath.Join(jobDir, inputDirName)

	job, err := s.prepareJob(r.Context(), jobID, jobDir, uploadDir, req, file)
	if err != nil {
		os.RemoveAll(jobDir)
		status, msg := classifyUploadError(err)
		if status == http.StatusInternalServerError {
			log.Error("failed to prepare job", "error", err)
		}
		writeError(w, status, msg)
		return
	}

	if err := s.store.CreateJob(r.Context(), job); err != nil {
		os.RemoveAll(jobDir)
		log.Error("failed to create job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	log.Info("generation job accepted", "count", req.Count, "format", req.OutputFormat, "user_address", req.UserAddress)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "NFT generation request accepted. Processing.",
		"jobId":   jobID,
	})
}

// prepareJob unpacks the upload, builds the catalog and returns the job row
// to insert.
func (s *Server) prepareJob(ctx context.Context, jobID, jobDir, uploadDir string, req model.JobRequest, file multipart.File) (model.Job, error) {
	if err := s.extractUpload(ctx, file, uploadDir); err != nil {
		return model.Job{}, err
	}

	root, err := catalog.ResolveRoot(uploadDir)
	if err != nil {
		return model.Job{}, err
	}
	cat, err := catalog.Build(ctx, root)
	if err != nil {
		return model.Job{}, err
	}

	payload, err := json.Marshal(model.JobPayload{
		Request:   req,
		Catalog:   cat,
		InputDir:  root,
		UploadDir: uploadDir,
		OutputDir: filepath.Join(jobDir, outputDirName),
	})
	if err != nil {
		return model.Job{}, fmt.Errorf("encode payload: %w", err)
	}
	return model.NewJob(jobID, req.UserAddress, jobDir, string(payload)), nil
}

// extractUpload spools the uploaded archive to UploadsDir and unpacks it into dest.
func (s *Server) extractUpload(ctx context.Context, file multipart.File, dest string) error {
	if err := os.MkdirAll(s.opts.UploadsDir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.opts.UploadsDir, "upload-*.zip")
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	_, err = archive.Extract(ctx, tmp.Name(), dest, s.opts.MaxExtractBytes)
	return err
}

func classifyUploadError(err error) (int, string) {
	var ve *model.ValidationError
	var de *catalog.DecodeError
	var pe *metadata.ParseError
	switch {
	case errors.Is(err, catalog.ErrEmptyCatalog):
		return http.StatusBadRequest, "No valid image files (PNG/JPG/JPEG/GIF) found in the uploaded zip file."
	case errors.As(err, &de), errors.As(err, &ve), errors.As(err, &pe):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, archive.ErrUnsafePath):
		return http.StatusBadRequest, "Uploaded archive contains unsafe paths."
	case errors.Is(err, archive.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "Uploaded archive is too large."
	case errors.Is(err, archive.ErrNotZip):
		return http.StatusBadRequest, "Uploaded file is not a readable zip archive."
	default:
		return http.StatusInternalServerError, "Failed to process request: " + err.Error()
	}
}

// parseForm parses a multipart body, writing the error response itself.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", mbe.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "expected a multipart/form-data body")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// GET /api/job-status/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.opts.Results != nil {
		if res, ok := s.opts.Results.Result(id); ok {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	switch job.Status {
	case model.StatusCompleted:
		var res model.JobResult
		if job.Result == nil || json.Unmarshal([]byte(*job.Result), &res) != nil {
			writeError(w, http.StatusInternalServerError, "job result is unreadable")
			return
		}
		writeJSON(w, http.StatusOK, res)
	case model.StatusFailed:
		info := model.ParseErrorInfo(job.ErrorInfo)
		writeJSON(w, http.StatusOK, map[string]any{
			"jobId":  job.ID,
			"status": model.StatusFailed,
			"error":  info.Message,
			"step":   info.FailedStep,
		})
	case model.StatusExpired:
		writeJSON(w, http.StatusGone, map[string]string{
			"jobId":  job.ID,
			"status": model.StatusExpired,
			"error":  "job output has expired",
		})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"jobId": job.ID, "status": statusInProgress})
	}
}

// ---------------------------------------------------------------------------
// GET /api/jobs
// ---------------------------------------------------------------------------

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := model.JobFilter{Status: splitComma(r.URL.Query().Get("status"))}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ---------------------------------------------------------------------------
// POST /api/update-metadata
// ---------------------------------------------------------------------------

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	cid := strings.TrimSpace(r.FormValue("imageIpfsCid"))
	gateway := strings.TrimSpace(r.FormValue("imageIpfsGatewayUrl"))
	file, header, err := r.FormFile("metadataZip")
	if cid == "" || gateway == "" || err != nil {
		writeError(w, http.StatusBadRequest, "Missing required data: Image IPFS CID, Image IPFS Gateway URL, or metadata zip file.")
		return
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimSpace(r.FormValue("outputFormat")))
	if ext == "" {
		ext = model.FormatPNG
	}
	if ext != model.FormatPNG && ext != model.FormatGIF {
		writeError(w, http.StatusBadRequest, "outputFormat: must be png or gif")
		return
	}
	if !archive.IsZip(header.Filename, header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "Uploaded file must be a .zip archive.")
		return
	}

	batchID := uuid.New().String()
	log := slog.With("job_id", batchID)
	batchDir := filepath.Join(s.opts.DataDir, batchID)
	workDir := filepath.Join(batchDir, rewriteDirName)

	fail := func(err error) {
		os.RemoveAll(batchDir)
		status, msg := classifyUploadError(err)
		if status == http.StatusInternalServerError {
			log.Error("metadata update failed", "error", err)
		}
		writeError(w, status, msg)
	}

	if err := s.extractUpload(r.Context(), file, workDir); err != nil {
		fail(err)
		return
	}
	baseURL := metadata.FinalBaseURL(gateway, cid)
	n, err := s.opts.Rewriter.Rewrite(r.Context(), workDir, baseURL, ext)
	if err != nil {
		fail(err)
		return
	}

	out := filepath.Join(batchDir, batchID+".zip")
	if _, err := archive.Directory(r.Context(), out, archive.Entry{Dir: workDir, Name: "metadata"}); err != nil {
		fail(err)
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		log.Warn("failed to remove rewrite work dir", "error", err)
	}

	log.Info("metadata updated", "records", n, "base_url", baseURL)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Metadata updated successfully!",
		"zipDownloadUrl": "/api/download/" + batchID + "/" + batchID + ".zip",
		"jobId":          batchID,
		"updated":        n,
	})
}
