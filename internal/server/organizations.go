package server

import (
	"context"
	"net/http"

	"github.com/wolfeidau/deskbook/internal/auth"
	"github.com/wolfeidau/deskbook/internal/models"
)

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.loader.Organizations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := s.loader.Organization(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (s *Server) listOrganizationOffices(w http.ResponseWriter, r *http.Request) {
	offices, err := s.loader.OfficesByOrganization(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offices)
}

// createOrganization authorizes against the submitted organization, so the
// caller must list themselves as a contact.
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var org models.Organization
	if err := decodeJSON(r, &org, false); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := guarded[*models.Organization, *models.Organization]{
		action: auth.ActionCreate,
		load: func(context.Context) (*models.Organization, error) {
			if err := org.PrepareCreate(); err != nil {
				return nil, err
			}
			return &org, nil
		},
		mutate: func(ctx context.Context, org *models.Organization) (*models.Organization, error) {
			return org, s.tx.CreateOrganization(ctx, org)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var patch models.OrganizationPatch
	if err := decodeJSON(r, &patch, true); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := guarded[*models.Organization, *models.Organization]{
		action: auth.ActionUpdate,
		load: func(ctx context.Context) (*models.Organization, error) {
			return s.loader.Organization(ctx, r.PathValue("id"))
		},
		mutate: func(ctx context.Context, org *models.Organization) (*models.Organization, error) {
			return s.tx.UpdateOrganization(ctx, org.ID, &patch)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	_, err := guarded[*models.Organization, struct{}]{
		action: auth.ActionDelete,
		load: func(ctx context.Context) (*models.Organization, error) {
			return s.loader.Organization(ctx, r.PathValue("id"))
		},
		mutate: func(ctx context.Context, org *models.Organization) (struct{}, error) {
			return struct{}{}, s.tx.DeleteOrganization(ctx, org.ID)
		},
	}.run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
