package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gigchat/internal/model"
)

// GetBuyer handles GET /buyers/username/{username}
func (h *Handler) GetBuyer(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	buyer, err := h.Directory.Buyer(username)
	if err != nil {
		h.Log.Debug("[GET /buyers/username] ❌ Not Found", zap.String("username", username))
		writeError(w, http.StatusNotFound, "Buyer not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]model.Buyer{"buyer": buyer})
}

// GetGig handles GET /gigs/{id}
func (h *Handler) GetGig(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	gig, err := h.Directory.Gig(id)
	if err != nil {
		h.Log.Debug("[GET /gigs] ❌ Not Found", zap.String("gig_id", id))
		writeError(w, http.StatusNotFound, "Gig not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]model.Gig{"gig": gig})
}
