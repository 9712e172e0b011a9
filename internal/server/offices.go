package server

import (
	"context"
	"net/http"

	"github.com/wolfeidau/deskbook/internal/auth"
	"github.com/wolfeidau/deskbook/internal/models"
)

func (s *Server) listOffices(w http.ResponseWriter, r *http.Request) {
	offices, err := s.loader.Offices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offices)
}

func (s *Server) getOffice(w http.ResponseWriter, r *http.Request) {
	office, err := s.loader.Office(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, office)
}

// createOffice authorizes against the owning organization.
func (s *Server) createOffice(w http.ResponseWriter, r *http.Request) {
	var office models.Office
	if err := decodeJSON(r, &office, false); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := guarded[*models.Organization, *models.Office]{
		action: auth.ActionCreate,
		load: func(ctx context.Context) (*models.Organization, error) {
			if err := office.PrepareCreate(); err != nil {
				return nil, err
			}
			return s.loader.Organization(ctx, office.OrganizationID)
		},
		mutate: func(ctx context.Context, _ *models.Organization) (*models.Office, error) {
			return &office, s.tx.CreateOffice(ctx, &office)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateOffice(w http.ResponseWriter, r *http.Request) {
	var patch models.OfficePatch
	if err := decodeJSON(r, &patch, true); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := guarded[*models.Office, *models.Office]{
		action: auth.ActionUpdate,
		load: func(ctx context.Context) (*models.Office, error) {
			return s.loader.Office(ctx, r.PathValue("id"))
		},
		mutate: func(ctx context.Context, office *models.Office) (*models.Office, error) {
			return s.tx.UpdateOffice(ctx, office.ID, &patch)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteOffice(w http.ResponseWriter, r *http.Request) {
	_, err := guarded[*models.Office, struct{}]{
		action: auth.ActionDelete,
		load: func(ctx context.Context) (*models.Office, error) {
			return s.loader.Office(ctx, r.PathValue("id"))
		},
		mutate: func(ctx context.Context, office *models.Office) (struct{}, error) {
			return struct{}{}, s.tx.DeleteOffice(ctx, office.OrganizationID, office.ID)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
