package server

import (
	"errors"
	"net/http"

	"pharmasure/internal/app"
	"pharmasure/pkg/auth"
	"pharmasure/pkg/domain"
)

type loginRequest struct {
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Role        domain.Role `json:"role"`
	CompanyName string      `json:"companyName"`
}

type signupRequest struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Role        domain.Role `json:"role"`
	CompanyName string      `json:"companyName"`
	LicenseID   string      `json:"licenseId"`
	FactoryID   string      `json:"factoryId"`
}

type authResponse struct {
	Token string             `json:"token"`
	User  domain.UserProfile `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "auth.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tok, err := s.app.Login(r.Context(), auth.LoginRequest{
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", err.Error())
		writeAuthError(w, err)
		return
	}
	s.audit(r, "auth.login", "success", "email", user.Email, "role", user.Role)
	writeJSON(w, http.StatusOK, authResponse{Token: tok, User: user})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "auth.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tok, err := s.app.Signup(r.Context(), auth.SignupRequest{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		CompanyName: req.CompanyName,
		LicenseID:   req.LicenseID,
		FactoryID:   req.FactoryID,
	})
	if err != nil {
		s.audit(r, "auth.signup", "fail", "reason", err.Error())
		writeAuthError(w, err)
		return
	}
	s.audit(r, "auth.signup", "success", "email", user.Email, "role", user.Role)
	writeJSON(w, http.StatusCreated, authResponse{Token: tok, User: user})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.ResetPassword(r.Context(), req.Email); err != nil {
		s.audit(r, "auth.reset", "fail", "reason", err.Error())
		writeAuthError(w, err)
		return
	}
	s.audit(r, "auth.reset", "success")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(auth.TabResetSent)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	tok, ok := bearerToken(r)
	if !ok {
		s.audit(r, "auth.logout", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(tok); err != nil {
		s.audit(r, "auth.logout", "fail", "reason", err.Error())
		writeAuthError(w, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, sess.User())
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
