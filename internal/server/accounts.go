package server

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/wolfeidau/deskbook/internal/auth"
	"github.com/wolfeidau/deskbook/internal/cognito"
)

// Accounts manages user accounts at the identity provider.
type Accounts interface {
	SignUp(ctx context.Context, username, email, password string) error
	ConfirmSignUp(ctx context.Context, username, code string) error
	SignIn(ctx context.Context, username, password string) (*cognito.Tokens, error)
}

type signUpRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// signInPayload summarises the identity carried by the issued access token.
type signInPayload struct {
	CoworkerID    string   `json:"coworkerId"`
	CoworkerEmail string   `json:"coworkerEmail"`
	CoworkerName  string   `json:"coworkerName"`
	AuthTime      int64    `json:"authTime"`
	IssueTime     int64    `json:"issueTime"`
	ExpTime       int64    `json:"expTime"`
	Organisations []string `json:"organisations"`
}

type signInResponse struct {
	Token   *cognito.Tokens `json:"token"`
	Payload signInPayload   `json:"payload"`
}

func validateUsername(errs fieldErrors, username string) fieldErrors {
	if len(username) < 6 {
		errs = append(errs, "username must be at least 6 characters")
	}
	return errs
}

func validatePassword(errs fieldErrors, password string) fieldErrors {
	if len(password) < 8 {
		errs = append(errs, "password must be at least 8 characters")
	}
	return errs
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	var errs fieldErrors
	errs = validateUsername(errs, req.Username)
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		errs = append(errs, "email must be a valid address")
	}
	errs = validatePassword(errs, req.Password)
	if len(errs) > 0 {
		writeError(w, r, errs)
		return
	}

	if err := s.cfg.Accounts.SignUp(r.Context(), req.Username, req.Email, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) verifyAccount(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	var errs fieldErrors
	errs = validateUsername(errs, req.Username)
	if len(req.Code) != 6 {
		errs = append(errs, "code must be exactly 6 characters")
	}
	if len(errs) > 0 {
		writeError(w, r, errs)
		return
	}

	if err := s.cfg.Accounts.ConfirmSignUp(r.Context(), req.Username, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	var errs fieldErrors
	errs = validateUsername(errs, req.Username)
	errs = validatePassword(errs, req.Password)
	if len(errs) > 0 {
		writeError(w, r, errs)
		return
	}

	tokens, err := s.cfg.Accounts.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.cfg.Verifier.Verify(tokens.AccessToken)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownKey) && s.cfg.Refresher != nil {
			s.cfg.Refresher.RequestRefresh()
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, signInResponse{
		Token: tokens,
		Payload: signInPayload{
			CoworkerID:    id.Subject,
			CoworkerEmail: req.Username,
			CoworkerName:  id.Username,
			AuthTime:      unixSeconds(id.AuthTime),
			IssueTime:     unixSeconds(id.IssuedAt),
			ExpTime:       unixSeconds(id.ExpiresAt),
			Organisations: id.Groups,
		},
	})
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
