package handlers

import (
	"encoding/json"
	"net/http"
)

// Fixed response messages shared by the API and the CLI
const (
	MessageRequiredProperty      = "Required property"
	MessageUnsupportedExtension  = "File extension not supported"
	MessageSubtitleNotFound      = "Subtitle not found for file"
	MessageMovieSubtitlesMissing = "Subtitles not found for movie"
	MessageInvalidFileName       = "File name could not be parsed"
	MessageUpstreamFailure       = "Subtitle sources unavailable"
	MessageInternalError         = "Internal server error"
)

// MessageForStatus returns the message the lookup endpoint sends with a status code
func MessageForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return MessageRequiredProperty
	case http.StatusNotFound:
		return MessageSubtitleNotFound
	case http.StatusUnsupportedMediaType:
		return MessageUnsupportedExtension
	case http.StatusBadGateway:
		return MessageUpstreamFailure
	case http.StatusOK:
		return ""
	}
	return MessageInternalError
}

// MessageResponse is the body of every non-200 response
type MessageResponse struct {
	Message string `json:"message"`
	At      string `json:"at,omitempty"`
}

// FileRequest is the body of the lookup and index endpoints
type FileRequest struct {
	FileName string `json:"fileName"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// decodeFileRequest returns false after writing a 400 when the body has no file name
func decodeFileRequest(w http.ResponseWriter, r *http.Request) (*FileRequest, bool) {
	var req FileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil || req.FileName == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: MessageRequiredProperty, At: "fileName"})
		return nil, false
	}
	if req.Bytes < 0 {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: MessageRequiredProperty, At: "bytes"})
		return nil, false
	}
	return &req, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}
