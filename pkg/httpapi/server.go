// Package httpapi exposes the dispatch pipeline and the handler registry
// over HTTP. Uploads arrive as multipart form data; every response is JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thomas-sabu/taskrouter/pkg/config"
	"github.com/thomas-sabu/taskrouter/pkg/dispatch"
	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

// maxUploadBytes bounds one multipart request body.
const maxUploadBytes = 32 << 20

// Server is the HTTP front end over the pipeline and the handler store.
type Server struct {
	cfg      *config.Config
	pipeline *dispatch.Pipeline
	store    registry.Store
	router   chi.Router
}

// NewServer wires the routes over the given pipeline and store.
func NewServer(cfg *config.Config, p *dispatch.Pipeline, store registry.Store) *Server {
	s := &Server{cfg: cfg, pipeline: p, store: store}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Post("/dispatch", s.handleDispatch)
	r.Route("/handlers", func(r chi.Router) {
		r.Get("/", s.handleListHandlers)
		r.Post("/", s.handleCreateHandler)
	})

	s.router = r
}

// ServeHTTP makes Server usable directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("http server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// --- Request/response types ---

type dispatchJSONRequest struct {
	Task    string `json:"task"`
	DocType string `json:"doc_type,omitempty"`
	Token   string `json:"token,omitempty"`
	Confirm *bool  `json:"confirm,omitempty"`
}

type handlerResponse struct {
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
	ModelKey    string `json:"model_key"`
	Kind        string `json:"kind"`
}

type createHandlerRequest struct {
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
	ModelKey    string `json:"model_key"`
	Kind        string `json:"kind,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDispatch accepts either a JSON body (no files) or a multipart form
// with a "task" field and any number of "files" parts. The pipeline's Result
// is returned as-is with status 200; dispatch-level failures are encoded in
// the Result, not in the HTTP status.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeDispatchRequest(r)
	if err != nil {
		s.errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.pipeline.Dispatch(r.Context(), req)
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) decodeDispatchRequest(r *http.Request) (dispatch.Request, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/") {
		var body dispatchJSONRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return dispatch.Request{}, errors.New("invalid JSON body: " + err.Error())
		}
		return dispatch.Request{
			Task:    body.Task,
			DocType: body.DocType,
			Token:   body.Token,
			Confirm: body.Confirm,
		}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return dispatch.Request{}, errors.New("invalid multipart form: " + err.Error())
	}

	req := dispatch.Request{
		Task:    r.FormValue("task"),
		DocType: r.FormValue("doc_type"),
		Token:   r.FormValue("token"),
	}
	if v := r.FormValue("confirm"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return dispatch.Request{}, errors.New("confirm must be a boolean")
		}
		req.Confirm = &b
	}

	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				return dispatch.Request{}, errors.New("open upload " + fh.Filename + ": " + err.Error())
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return dispatch.Request{}, errors.New("read upload " + fh.Filename + ": " + err.Error())
			}
			req.Files = append(req.Files, dispatch.File{Filename: fh.Filename, Data: data})
		}
	}
	return req, nil
}

func (s *Server) handleListHandlers(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListHandlers(r.Context())
	if err != nil {
		s.errorJSON(w, http.StatusInternalServerError, "list handlers: "+err.Error())
		return
	}
	resp := make([]handlerResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, handlerResponse{
			Name:        rec.Name,
			Instruction: rec.Instruction,
			ModelKey:    rec.ModelKey,
			Kind:        rec.Kind.String(),
		})
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleCreateHandler(w http.ResponseWriter, r *http.Request) {
	var body createHandlerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorJSON(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	name := registry.NormalizeName(body.Name)
	if !registry.ValidName(name) {
		s.errorJSON(w, http.StatusBadRequest, "handler name must be a valid identifier")
		return
	}
	if body.Instruction == "" || body.ModelKey == "" {
		s.errorJSON(w, http.StatusBadRequest, "instruction and model_key are required")
		return
	}
	if _, ok := s.cfg.Resolve(body.ModelKey); !ok {
		s.errorJSON(w, http.StatusBadRequest, "model_key "+body.ModelKey+" is not configured")
		return
	}
	kind, err := registry.ParseKind(body.Kind)
	if err != nil {
		s.errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := registry.HandlerRecord{Name: name, Instruction: body.Instruction, ModelKey: body.ModelKey, Kind: kind}
	if err := s.store.PutHandler(r.Context(), rec); err != nil {
		s.errorJSON(w, http.StatusInternalServerError, "store handler: "+err.Error())
		return
	}
	slog.Info("handler registered", "name", name, "kind", kind)
	s.jsonResponse(w, http.StatusCreated, handlerResponse{
		Name:        rec.Name,
		Instruction: rec.Instruction,
		ModelKey:    rec.ModelKey,
		Kind:        rec.Kind.String(),
	})
}

// --- Helpers ---

func (s *Server) jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func (s *Server) errorJSON(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, errorResponse{Error: msg})
}
