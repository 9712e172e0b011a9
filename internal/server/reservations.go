package server

import (
	"context"
	"net/http"

	"github.com/wolfeidau/deskbook/internal/auth"
	"github.com/wolfeidau/deskbook/internal/models"
)

func (s *Server) listReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := s.loader.Reservations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

func (s *Server) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.loader.Reservation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listOfficeReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := s.loader.ReservationsByOffice(r.Context(), r.PathValue("officeId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

func (s *Server) listUserReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := s.loader.ReservationsByUser(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

// createReservation authorizes against the office being booked. The
// reservation defaults to the caller when it names no user.
func (s *Server) createReservation(w http.ResponseWriter, r *http.Request) {
	var res models.Reservation
	if err := decodeJSON(r, &res, false); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := guarded[*models.Office, *models.Reservation]{
		action: auth.ActionCreate,
		load: func(ctx context.Context) (*models.Office, error) {
			if err := res.PrepareCreate(auth.IdentityFromContext(ctx).Username); err != nil {
				return nil, err
			}
			return s.loader.Office(ctx, res.OfficeID)
		},
		mutate: func(ctx context.Context, _ *models.Office) (*models.Reservation, error) {
			return &res, s.tx.CreateReservation(ctx, &res)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// loadReservationOffice hydrates a stored reservation and the office whose
// contacts may change it.
func (s *Server) loadReservationOffice(ctx context.Context, id string) (*models.Reservation, *models.Office, error) {
	res, err := s.loader.Reservation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	office, err := s.loader.Office(ctx, res.OfficeID)
	if err != nil {
		return nil, nil, err
	}
	return res, office, nil
}

func (s *Server) updateReservation(w http.ResponseWriter, r *http.Request) {
	var patch models.ReservationPatch
	if err := decodeJSON(r, &patch, true); err != nil {
		writeError(w, r, err)
		return
	}

	var res *models.Reservation
	updated, err := guarded[*models.Office, *models.Reservation]{
		action: auth.ActionUpdate,
		load: func(ctx context.Context) (office *models.Office, err error) {
			res, office, err = s.loadReservationOffice(ctx, r.PathValue("id"))
			return office, err
		},
		mutate: func(ctx context.Context, _ *models.Office) (*models.Reservation, error) {
			if err := patch.CheckWindow(res); err != nil {
				return nil, err
			}
			return s.tx.UpdateReservation(ctx, res.ID, &patch)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteReservation(w http.ResponseWriter, r *http.Request) {
	var res *models.Reservation
	_, err := guarded[*models.Office, struct{}]{
		action: auth.ActionDelete,
		load: func(ctx context.Context) (office *models.Office, err error) {
			res, office, err = s.loadReservationOffice(ctx, r.PathValue("id"))
			return office, err
		},
		mutate: func(ctx context.Context, office *models.Office) (struct{}, error) {
			return struct{}{}, s.tx.DeleteReservation(ctx, office.ID, res.ID)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
