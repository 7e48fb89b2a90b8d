package httpapi

import (
	"log"
	"net/http"
	"strconv"

	"github.com/plexmate/plexmate/src/plex"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleCreatePin(w http.ResponseWriter, r *http.Request) {
	pin, err := s.auth.CreatePin(r.Context())
	if err != nil {
		log.Printf("create pin: %v", err)
		writeError(w, http.StatusBadGateway, "failed to create PIN")
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

func (s *Server) handleCheckPin(w http.ResponseWriter, r *http.Request) {
	pinID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pin id")
		return
	}
	code := r.URL.Query().Get("code")

	pin, err := s.auth.CheckPin(r.Context(), pinID, code)
	if err != nil {
		log.Printf("check pin %d: %v", pinID, err)
		writeError(w, http.StatusBadGateway, "failed to check PIN")
		return
	}
	if pin == nil {
		// Still pending; echo the pin so clients can keep polling.
		writeJSON(w, http.StatusOK, plex.Pin{ID: pinID, Code: code})
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

func (s *Server) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	pinID, err := strconv.ParseInt(r.URL.Query().Get("pin_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pin id")
		return
	}
	code := r.URL.Query().Get("code")

	pin, err := s.auth.CheckPin(r.Context(), pinID, code)
	if err != nil {
		log.Printf("check pin %d: %v", pinID, err)
		writeError(w, http.StatusBadGateway, "failed to check PIN")
		return
	}
	if pin == nil || pin.AuthToken == "" {
		writeError(w, http.StatusBadRequest, "PIN not yet authenticated")
		return
	}

	user, err := s.auth.UserInfo(r.Context(), pin.AuthToken)
	if err != nil {
		log.Printf("user info: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch user info")
		return
	}
	session, err := s.auth.CreateSessionToken(pin.AuthToken, user.ID, user.Username)
	if err != nil {
		log.Printf("session token: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: session, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := sessionClaims(r)
	user, err := s.auth.UserInfo(r.Context(), claims.PlexToken)
	if err != nil {
		log.Printf("user info: %v", err)
		writeError(w, http.StatusBadGateway, "failed to fetch user info")
		return
	}
	id, err := s.auth.OwnedServerIdentifier(r.Context(), claims.PlexToken)
	if err != nil {
		log.Printf("owned server: %v", err)
	} else {
		user.ClientIdentifier = id
	}
	writeJSON(w, http.StatusOK, user)
}
