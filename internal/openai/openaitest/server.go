// Package openaitest provides a fake translation and speech service for tests
// and local development.
package openaitest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/Lavryniukk/voice-translator/internal/openai"
)

const (
	TranslationPath = "/v1/audio/translations"
	SpeechPath      = "/v1/audio/speech"

	maxUploadSize = 32 << 20
)

// Reply is a canned response; a zero Status means 200
type Reply struct {
	Status int
	Body   string
}

// TranslationCall records one upload to the translation endpoint
type TranslationCall struct {
	Filename      string
	Model         string
	Size          int
	Authorization string
	RequestID     string
}

// SpeechCall records one request to the speech endpoint
type SpeechCall struct {
	Request       openai.SpeechRequest
	Authorization string
	RequestID     string
}

// Handler serves both endpoints. Queued replies are used first, in order;
// afterwards every translation returns DefaultText and every speech request
// returns SpeechAudio.
type Handler struct {
	mux    *http.ServeMux
	logger *slog.Logger

	mu                 sync.Mutex
	defaultText        string
	speechAudio        []byte
	translationReplies []Reply
	speechReplies      []Reply
	translations       []TranslationCall
	speeches           []SpeechCall
}

// NewHandler creates a handler answering "hello" and a few bytes of fake mp3
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &Handler{
		mux:         http.NewServeMux(),
		logger:      logger,
		defaultText: "hello",
		speechAudio: []byte("ID3fake-mp3-audio"),
	}
	h.mux.HandleFunc(TranslationPath, h.handleTranslation)
	h.mux.HandleFunc(SpeechPath, h.handleSpeech)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SetDefaultText sets the translation returned once queued replies run out
func (h *Handler) SetDefaultText(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaultText = text
}

// SetSpeechAudio sets the body returned once queued speech replies run out
func (h *Handler) SetSpeechAudio(audio []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speechAudio = audio
}

// QueueTranslation appends canned translation replies
func (h *Handler) QueueTranslation(replies ...Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.translationReplies = append(h.translationReplies, replies...)
}

// QueueSpeech appends canned speech replies
func (h *Handler) QueueSpeech(replies ...Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speechReplies = append(h.speechReplies, replies...)
}

// Translations returns the recorded translation uploads
func (h *Handler) Translations() []TranslationCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TranslationCall(nil), h.translations...)
}

// Speeches returns the recorded speech requests
func (h *Handler) Speeches() []SpeechCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]SpeechCall(nil), h.speeches...)
}

func (h *Handler) handleTranslation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	call := TranslationCall{
		Filename:      header.Filename,
		Model:         r.FormValue("model"),
		Size:          len(audio),
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
	}

	h.mu.Lock()
	h.translations = append(h.translations, call)
	reply, queued := pop(&h.translationReplies)
	text := h.defaultText
	h.mu.Unlock()

	h.logger.Info("Translation request received",
		slog.String("filename", call.Filename),
		slog.String("model", call.Model),
		slog.Int("audio_size", call.Size),
		slog.String("request_id", call.RequestID),
	)

	if queued {
		writeReply(w, reply, "application/json")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"text": text})
}

func (h *Handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req openai.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request", http.StatusBadRequest)
		return
	}

	call := SpeechCall{
		Request:       req,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
	}

	h.mu.Lock()
	h.speeches = append(h.speeches, call)
	reply, queued := pop(&h.speechReplies)
	audio := h.speechAudio
	h.mu.Unlock()

	h.logger.Info("Speech request received",
		slog.String("model", req.Model),
		slog.String("voice", req.Voice),
		slog.String("input", req.Input),
		slog.String("request_id", call.RequestID),
	)

	if queued {
		writeReply(w, reply, "audio/mpeg")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audio)
}

func pop(replies *[]Reply) (Reply, bool) {
	if len(*replies) == 0 {
		return Reply{}, false
	}
	reply := (*replies)[0]
	*replies = (*replies)[1:]
	return reply, true
}

func writeReply(w http.ResponseWriter, reply Reply, contentType string) {
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	io.WriteString(w, reply.Body)
}

// Server is a Handler listening on a local httptest server
type Server struct {
	*Handler
	srv *httptest.Server
}

// NewServer starts a fake service; Close must be called when done
func NewServer() *Server {
	h := NewHandler(nil)
	return &Server{
		Handler: h,
		srv:     httptest.NewServer(h),
	}
}

// URL returns the base URL of the server
func (s *Server) URL() string {
	return s.srv.URL
}

// TranslationEndpoint returns the full translation URL
func (s *Server) TranslationEndpoint() string {
	return s.srv.URL + TranslationPath
}

// SpeechEndpoint returns the full speech URL
func (s *Server) SpeechEndpoint() string {
	return s.srv.URL + SpeechPath
}

// Close shuts the server down
func (s *Server) Close() {
	s.srv.Close()
}
