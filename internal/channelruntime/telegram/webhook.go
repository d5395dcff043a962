package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

type webhookServer struct {
	handler updateHandler
	log     *slog.Logger
	opts    runtimeLoopOptions
	now     func() time.Time
}

func newWebhookRouter(h updateHandler, logger *slog.Logger, opts runtimeLoopOptions) *mux.Router {
	s := &webhookServer{handler: h, log: logger, opts: opts, now: time.Now}
	r := mux.NewRouter()
	r.HandleFunc(opts.WebhookPath, s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not found"})
	})
	return r
}

func runWebhookServer(ctx context.Context, h updateHandler, logger *slog.Logger, opts runtimeLoopOptions) error {
	srv := &http.Server{
		Addr:              opts.WebhookListen,
		Handler:           newWebhookRouter(h, logger, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("telegram_webhook_listen", "addr", opts.WebhookListen, "path", opts.WebhookPath, "secret", opts.WebhookSecret != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telegram_webhook_shutdown_error", "error", err.Error())
			return err
		}
		logger.Info("telegram_stop", "reason", "context_canceled")
		return nil
	})
	return g.Wait()
}

func (s *webhookServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *webhookServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebhookSecret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) != 1 {
			s.log.Warn("telegram_webhook_unauthorized", "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid secret token"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"ok": false, "error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "failed to read request body"})
		return
	}
	u, msg := decodeWebhookUpdate(body)
	if msg != "" {
		s.log.Warn("telegram_webhook_bad_request", "error", msg)
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": msg})
		return
	}

	handleUpdate(r.Context(), s.handler, s.log, u, s.opts.TaskTimeout)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// decodeWebhookUpdate validates a webhook body. A non-empty message
// describes why the payload was rejected.
func decodeWebhookUpdate(body []byte) (telegramUpdate, string) {
	if len(body) == 0 {
		return telegramUpdate{}, "empty request body"
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return telegramUpdate{}, "invalid JSON body: " + err.Error()
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return telegramUpdate{}, "request body must be a JSON object"
	}
	idRaw, ok := obj["update_id"]
	if !ok {
		return telegramUpdate{}, "missing update_id"
	}
	id, ok := idRaw.(float64)
	if !ok || id != float64(int64(id)) {
		return telegramUpdate{}, "update_id must be an integer"
	}
	var u telegramUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		return telegramUpdate{}, "invalid update: " + err.Error()
	}
	return u, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
