package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

// IdempotencyKeyHeader — заголовок, включающий идемпотентную обработку запроса.
const IdempotencyKeyHeader = "Idempotency-Key"

const defaultIdempotencyTTL = 24 * time.Hour

// responseRecorder перехватывает статус и тело ответа для сохранения
// в idempotency-записи.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// Idempotency возвращает middleware, повторяющее сохранённый ответ при
// повторе запроса с тем же Idempotency-Key. Ключ привязан к хэшу тела:
// переиспользование ключа с другим телом — конфликт.
func Idempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.WithField("component", "idempotency-middleware")
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if repo == nil || key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r, body)

			record, err := repo.Get(key)
			switch {
			case err == nil:
				replayOrConflict(w, record, hash)
				return
			case !errors.Is(err, domain.ErrIdempotencyKeyNotFound):
				logger.WithError(err).WithField("key", key).Error("idempotency lookup failed")
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}

			if _, err := repo.CreateProcessing(key, hash, time.Now().UTC().Add(ttl)); err != nil {
				if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
					// Конкурентный запрос успел первым: отвечаем его результатом.
					if record, getErr := repo.Get(key); getErr == nil {
						replayOrConflict(w, record, hash)
						return
					}
				}
				logger.WithError(err).WithField("key", key).Error("idempotency record create failed")
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}

			recorder := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			responseBody := recorder.body.Bytes()

			var markErr error
			if status < http.StatusBadRequest {
				markErr = repo.MarkDone(key, responseBody, status)
			} else {
				markErr = repo.MarkFailed(key, responseBody, status)
			}
			if markErr != nil {
				logger.WithError(markErr).WithField("key", key).Warn("failed to finalize idempotency record")
			}
		})
	}
}

// replayOrConflict повторяет сохранённый ответ либо сообщает о конфликте.
func replayOrConflict(w http.ResponseWriter, record domain.IdempotencyRecord, hash string) {
	if record.RequestHash != hash {
		writeError(w, http.StatusConflict, "idempotency_conflict",
			domain.ErrIdempotencyHashMismatch.Error())
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		writeError(w, http.StatusConflict, "request_in_progress",
			"a request with this idempotency key is still being processed")
		return
	}

	status := record.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// requestHash вычисляет хэш метода, пути и тела запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
