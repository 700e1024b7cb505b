package webui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"minutes/internal/logging"
	"minutes/internal/media/extract"
	"minutes/internal/metrics"
	"minutes/internal/pipeline"
	"minutes/internal/services"
	"minutes/internal/tempfile"
	"minutes/internal/workflow"
)

const (
	uploadField = "file"

	softLimitWarning = "ファイルが大きいため、処理に時間がかかる可能性があります。コマンドライン版の使用をお勧めします。"
	hardLimitMessage = "ファイルサイズが制限を超えています。コマンドライン版をご利用ください: minutes <input_file>"
	busyMessage      = "別の文字起こしを処理中です。完了してから再度お試しください。"
)

var errTooLarge = errors.New("upload exceeds hard limit")

// createJobResponse is returned by POST /api/jobs.
type createJobResponse struct {
	ID      string `json:"id"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.jobs.busy() {
		s.rejectUpload(ctx, w, http.StatusConflict, metrics.UploadBusy, busyMessage)
		return
	}
	if s.limits.Hard > 0 && r.ContentLength > s.limits.Hard+multipartOverhead {
		s.rejectUpload(ctx, w, http.StatusRequestEntityTooLarge, metrics.UploadTooLarge, hardLimitMessage)
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		s.rejectUpload(ctx, w, http.StatusBadRequest, metrics.UploadRejected, "multipart/form-data upload required")
		return
	}
	part, err := nextFilePart(reader)
	if err != nil {
		s.rejectUpload(ctx, w, http.StatusBadRequest, metrics.UploadRejected, err.Error())
		return
	}
	defer part.Close()

	inputName := filepath.Base(part.FileName())
	if !extract.IsSupported(inputName) {
		s.rejectUpload(ctx, w, http.StatusBadRequest, metrics.UploadRejected,
			fmt.Sprintf("サポートされていないファイル形式です: %s (対応形式: %s)", extract.Ext(inputName), extract.SupportedList()))
		return
	}

	temps, err := tempfile.NewSet(s.workDir, "minutes-upload-")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not stage upload")
		return
	}
	staged, size, err := s.stage(temps, part, extract.Ext(inputName))
	if err != nil {
		_ = temps.Cleanup()
		if errors.Is(err, errTooLarge) {
			s.rejectUpload(ctx, w, http.StatusRequestEntityTooLarge, metrics.UploadTooLarge, hardLimitMessage)
			return
		}
		s.logger.Warn("upload staging failed",
			logging.String(logging.FieldEventType, "upload_failed"),
			logging.String("input", inputName),
			logging.Error(err),
		)
		s.rejectUpload(ctx, w, http.StatusBadRequest, metrics.UploadRejected, "upload failed")
		return
	}

	warning := ""
	if s.limits.Soft > 0 && size > s.limits.Soft {
		warning = softLimitWarning
	}

	id := uuid.NewString()
	if err := s.jobs.start(id, inputName, size, warning, temps); err != nil {
		_ = temps.Cleanup()
		if errors.Is(err, errShuttingDown) {
			s.rejectUpload(ctx, w, http.StatusServiceUnavailable, metrics.UploadRejected, "サーバーを停止しています")
			return
		}
		s.rejectUpload(ctx, w, http.StatusConflict, metrics.UploadBusy, busyMessage)
		return
	}
	s.metrics.RecordUpload(ctx, metrics.UploadAccepted)
	s.logger.Info("upload accepted",
		logging.String(logging.FieldEventType, "upload_accepted"),
		logging.String("job_id", id),
		logging.String("input", inputName),
		logging.String("size", humanize.IBytes(uint64(size))),
		logging.Bool("soft_limit_exceeded", warning != ""),
	)

	go s.runJob(id, inputName, staged)

	s.writeJSON(w, http.StatusAccepted, createJobResponse{ID: id, Warning: warning})
}

func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing %q form field", uploadField)
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

// stage streams the upload into a tracked temp file, stopping once the hard
// limit is exceeded.
func (s *Server) stage(temps *tempfile.Set, src io.Reader, ext string) (string, int64, error) {
	file, err := temps.Create("upload-*" + ext)
	if err != nil {
		return "", 0, err
	}
	dst, err := os.OpenFile(file.Path(), os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", 0, err
	}
	limit := s.limits.Hard
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	written, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return "", written, copyErr
	}
	if closeErr != nil {
		return "", written, closeErr
	}
	if limit > 0 && written > limit {
		return "", written, errTooLarge
	}
	return file.Path(), written, nil
}

func (s *Server) runJob(id, inputName, staged string) {
	defer s.jobs.done()
	ctx := services.WithRequestID(s.baseCtx, id)

	outcome, err := s.runner.Transcribe(ctx, workflow.Job{
		Input:     staged,
		InputName: inputName,
		Source:    workflow.SourceWeb,
		RunID:     id,
		Progress: func(percent int, message string) {
			s.jobs.progress(id, percent, message)
		},
		OnSegment: func(done, total int) {
			s.jobs.progress(id, pipeline.ProgressAnalyzing, fmt.Sprintf("文字起こし中... (%d/%d)", done, total))
		},
	})
	if err != nil {
		s.jobs.fail(id, jobErrorMessage(err))
		return
	}
	s.jobs.succeed(id, outcome.Report, outcome.Speakers, outcome.Segments)
}

func (s *Server) rejectUpload(ctx context.Context, w http.ResponseWriter, status int, result, message string) {
	s.metrics.RecordUpload(ctx, result)
	s.writeError(w, status, message)
}

func jobErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "処理が中断されました"
	case workflow.IsBusy(err):
		return busyMessage
	case errors.Is(err, pipeline.ErrNoSegments):
		return "文字起こしできるセグメントがありませんでした"
	default:
		return err.Error()
	}
}

// TranscriptName returns the download name for an uploaded file.
func TranscriptName(inputName string) string {
	base := filepath.Base(inputName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "transcript"
	}
	return stem + "_transcript.md"
}

// contentDisposition builds an attachment header with an ASCII fallback and
// an RFC 5987 filename* parameter for non-ASCII names.
func contentDisposition(name string) string {
	fallback := asciiFallback(name)
	if fallback == name {
		return mime.FormatMediaType("attachment", map[string]string{"filename": name})
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, encodeRFC5987(name))
}

func asciiFallback(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r > 0x7e || r == '"' || r == '\\':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func encodeRFC5987(value string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
