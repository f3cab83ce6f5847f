package app

import "net/http"

// handleAdminRoutes serves department management and user administration.
// Returns false when the path is not an admin route so the caller can
// fall through to its 404.
func (s *HTTPServer) handleAdminRoutes(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if len(parts) < 2 || parts[0] != "api" {
		return false
	}

	if parts[1] == "departments" {
		switch {
		case len(parts) == 2 && r.Method == http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.CreateDepartment(r.Context(), session, body.Name, body.Description)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return true
			}
			writeJSON(w, http.StatusCreated, payload)
			return true

		case len(parts) == 3 && r.Method == http.MethodPut:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.UpdateDepartment(r.Context(), session, parts[2], body.Name, body.Description)
			s.respond(w, payload, err)
			return true

		case len(parts) == 3 && r.Method == http.MethodDelete:
			s.respondNoBody(w, s.service.DeleteDepartment(r.Context(), session, parts[2]))
			return true

		case len(parts) == 4 && parts[3] == "admins" && r.Method == http.MethodGet:
			payload, err := s.service.ListDepartmentAdmins(r.Context(), session, parts[2])
			s.respond(w, payload, err)
			return true

		case len(parts) == 4 && parts[3] == "admins" && r.Method == http.MethodPost:
			var body struct {
				UserID string `json:"userId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.AddDepartmentAdmin(r.Context(), session, parts[2], body.UserID)
			s.respond(w, payload, err)
			return true

		case len(parts) == 5 && parts[3] == "admins" && r.Method == http.MethodDelete:
			s.respondNoBody(w, s.service.RemoveDepartmentAdmin(r.Context(), session, parts[2], parts[4]))
			return true
		}
		return false
	}

	if parts[1] == "admin" && len(parts) >= 3 && parts[2] == "users" {
		switch {
		case len(parts) == 3 && r.Method == http.MethodGet:
			payload, err := s.service.ListUsers(r.Context(), session)
			s.respond(w, payload, err)
			return true

		case len(parts) == 4 && r.Method == http.MethodDelete:
			s.respondNoBody(w, s.service.DeleteUser(r.Context(), session, parts[3]))
			return true

		case len(parts) == 5 && parts[4] == "roles" && r.Method == http.MethodPost:
			var body struct {
				Role string `json:"role"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.GrantRole(r.Context(), session, parts[3], body.Role)
			s.respond(w, payload, err)
			return true

		case len(parts) == 6 && parts[4] == "roles" && r.Method == http.MethodDelete:
			payload, err := s.service.RevokeRole(r.Context(), session, parts[3], parts[5])
			s.respond(w, payload, err)
			return true
		}
	}
	return false
}
