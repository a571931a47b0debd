package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/cryptodash/internal/models"
	"github.com/kjannette/cryptodash/internal/prices"
)

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	coinID := r.PathValue("coinId")
	data, err := s.prices.Historical(r.Context(), coinID)
	if err != nil {
		s.fail(w, err, coinID, "Failed to fetch historical data")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleLiveAll(w http.ResponseWriter, r *http.Request) {
	data, err := s.prices.LiveAll(r.Context())
	if err != nil {
		s.fail(w, err, "", "Failed to fetch live prices")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	coinID := r.PathValue("coinId")
	usd, err := s.prices.Live(r.Context(), coinID)
	if err != nil {
		s.fail(w, err, coinID, "Failed to fetch live price")
		return
	}
	writeJSON(w, http.StatusOK, models.LivePrices{coinID: usd})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	coinID := r.PathValue("coinId")
	sum, err := s.prices.Summary(r.Context(), coinID)
	if err != nil {
		s.fail(w, err, coinID, "Failed to fetch price summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prices.Coins())
}

func (s *Server) fail(w http.ResponseWriter, err error, coinID, msg string) {
	if errors.Is(err, prices.ErrUnsupportedCoin) {
		writeError(w, http.StatusBadRequest, "Unsupported coin", err.Error())
		return
	}
	s.log.WithField("coin", coinID).Errorf("%s: %v", msg, err)
	writeError(w, http.StatusInternalServerError, msg, err.Error())
}
