package httpapi

import (
	"log"
	"net/http"
	"strconv"

	"github.com/plexmate/plexmate"
	"github.com/plexmate/plexmate/src/sse"
)

type chatRequest struct {
	Message        string `json:"message"`
	ServerName     string `json:"server_name"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// assistant builds the per-user assistant bound to the requested server.
func (s *Server) assistant(r *http.Request, serverName string) *plexmate.Assistant {
	lib := &plexmate.ServerLibrary{Client: s.client(r), ServerName: serverName}
	tools := plexmate.NewToolset(lib).WithWebSearch(s.search)
	return plexmate.NewAssistant(s.model, tools, s.conv, sessionClaims(r).UserID)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" || req.ServerName == "" {
		writeError(w, http.StatusBadRequest, "message and server_name are required")
		return
	}

	res, err := s.assistant(r, req.ServerName).Chat(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		log.Printf("chat: %v", err)
		writeError(w, http.StatusBadGateway, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" || req.ServerName == "" {
		writeError(w, http.StatusBadRequest, "message and server_name are required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	enc := sse.NewEncoder(w)
	events := s.assistant(r, req.ServerName).ChatStream(r.Context(), req.ConversationID, req.Message)
	for ev := range events {
		if err := enc.Emit(ev); err != nil {
			// Client went away; keep draining so the assistant
			// goroutine can finish and persist the turn.
			go func() {
				for range events {
				}
			}()
			return
		}
	}
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.conv.List(r.Context(), sessionClaims(r).UserID, limit)
	if err != nil {
		log.Printf("list conversations: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.conv.History(r.Context(), sessionClaims(r).UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	ok, err := s.conv.Delete(r.Context(), sessionClaims(r).UserID, r.PathValue("id"))
	if err != nil {
		log.Printf("delete conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	msg := "Conversation not found"
	if ok {
		msg = "Conversation cleared"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
