package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/pipeline"
	"github.com/normanking/cortexlipsync/internal/store"
	"github.com/normanking/cortexlipsync/internal/stt"
	"github.com/normanking/cortexlipsync/internal/tts"
	"github.com/normanking/cortexlipsync/internal/utterance"
	"github.com/normanking/cortexlipsync/internal/voice"
)

type ttsRequest struct {
	Text             string `json:"text"`
	Language         string `json:"language"`
	LanguageCode     string `json:"languageCode"`
	FacialExpression string `json:"facialExpression"`
	VoiceID          string `json:"voiceId"`
}

type ttsResponse struct {
	UtteranceID      string              `json:"utteranceId"`
	Audio            []byte              `json:"audio"`
	Format           string              `json:"format"`
	Provider         string              `json:"provider"`
	Language         string              `json:"language"`
	FacialExpression string              `json:"facialExpression"`
	Timeline         *utterance.Timeline `json:"timeline"`
}

type sttResponse struct {
	Transcription string `json:"transcription"`
	LanguageCode  string `json:"language_code"`
	Spoken        string `json:"spoken,omitempty"`
	UtteranceID   string `json:"utteranceId,omitempty"`
	Error         string `json:"error,omitempty"`
}

type playbackResponse struct {
	State       string  `json:"state"`
	UtteranceID string  `json:"utteranceId,omitempty"`
	Text        string  `json:"text,omitempty"`
	Expression  string  `json:"expression,omitempty"`
	ClockTime   float64 `json:"clockTime"`
	ActiveCue   int     `json:"activeCue"`
	Paused      bool    `json:"paused"`
	Queued      int     `json:"queued"`
	Session     string  `json:"session,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps pipeline errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, tts.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrSynthesis):
		return http.StatusBadGateway
	case errors.Is(err, stt.ErrAudioTooShort):
		return http.StatusBadRequest
	case errors.Is(err, stt.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, stt.ErrEmptyTranscript):
		return http.StatusUnprocessableEntity
	}
	// extraction failures and anything unexpected
	return http.StatusInternalServerError
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		s.writeError(w, http.StatusServiceUnavailable, "synthesis unavailable")
		return
	}

	var req ttsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	lang := req.Language
	if lang == "" {
		lang = req.LanguageCode
	}

	u, err := s.deps.Assistant.Say(r.Context(), pipeline.Request{
		Text:       req.Text,
		Language:   lang,
		Expression: req.FacialExpression,
		VoiceID:    req.VoiceID,
	})
	if err != nil {
		status := errorStatus(err)
		s.logger.Warn().Err(err).Int("status", status).Msg("TTS request failed")
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ttsResponse{
		UtteranceID:      u.ID,
		Audio:            u.Audio,
		Format:           u.AudioFormat,
		Provider:         u.Provider,
		Language:         u.Language,
		FacialExpression: u.Expression,
		Timeline:         u.Timeline,
	})
}

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		s.writeError(w, http.StatusServiceUnavailable, "transcription unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no audio file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read audio")
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	speak, _ := strconv.ParseBool(r.FormValue("speak"))
	format := audio.ParseFormat(header.Header.Get("Content-Type"))
	if format == audio.FormatUnknown {
		format = audio.ParseFormat(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	}

	turn, err := s.deps.Assistant.Transcribe(r.Context(), voice.Recording{
		Audio:      data,
		Format:     format,
		Filename:   header.Filename,
		Language:   r.FormValue("language"),
		Speak:      speak,
		Expression: r.FormValue("facialExpression"),
	})
	if turn == nil {
		status := errorStatus(err)
		s.logger.Warn().Err(err).Int("status", status).Msg("Transcription failed")
		s.writeError(w, status, err.Error())
		return
	}

	resp := sttResponse{
		Transcription: turn.Transcript.Text,
		LanguageCode:  turn.Transcript.Language,
		Spoken:        turn.Spoken,
	}
	if turn.Utterance != nil {
		resp.UtteranceID = turn.Utterance.ID
	}
	status := http.StatusOK
	if err != nil {
		status = errorStatus(err)
		resp.Error = err.Error()
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		s.writeError(w, http.StatusNotFound, "audio store disabled")
		return
	}
	clip, err := s.deps.Store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "audio not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", clip.Format.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Write(clip.Data)
}

func (s *Server) playbackView() playbackResponse {
	snap := s.deps.Player.Snapshot()
	resp := playbackResponse{
		State:     snap.State.String(),
		ClockTime: snap.ClockTime,
		ActiveCue: snap.ActiveCue,
		Paused:    snap.Paused,
		Queued:    snap.Queued,
	}
	if u := snap.Current; u != nil {
		resp.UtteranceID = u.ID
		resp.Text = u.Text
		resp.Expression = u.Expression
	}
	if s.deps.Assistant != nil {
		resp.Session = s.deps.Assistant.Session().State().String()
	}
	return resp
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		s.writeError(w, http.StatusServiceUnavailable, "playback unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, s.playbackView())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		s.writeError(w, http.StatusServiceUnavailable, "playback unavailable")
		return
	}
	stopped := s.deps.Player.Stop()
	s.writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		s.writeError(w, http.StatusServiceUnavailable, "playback unavailable")
		return
	}
	s.deps.Player.Pause()
	s.writeJSON(w, http.StatusOK, s.playbackView())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.deps.Player == nil {
		s.writeError(w, http.StatusServiceUnavailable, "playback unavailable")
		return
	}
	s.deps.Player.Resume()
	s.writeJSON(w, http.StatusOK, s.playbackView())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := map[string]string{}
	if s.deps.Health != nil {
		for name, err := range s.deps.Health(r.Context()) {
			if err != nil {
				providers[name] = err.Error()
				continue
			}
			providers[name] = "ok"
		}
	}
	clients := 0
	if s.deps.Hub != nil {
		clients = s.deps.Hub.ClientCount()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": providers,
		"clients":   clients,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.deps.Logs.GetHistory(limit))
}
