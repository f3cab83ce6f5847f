package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PetruchoEbovski/ask-answer-hub/internal/rbac"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/store"
	"github.com/PetruchoEbovski/ask-answer-hub/internal/util"
)

// Admin operations: user listing, role grants, departments and their
// admin links. Every entry point gates on the admin role first.

func (s *Service) requireAdmin(session Session) error {
	if !rbac.HasRole(session.Roles, rbac.RoleAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, session Session) (map[string]any, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(users))
	for _, u := range users {
		payloads = append(payloads, userPayload(u))
	}
	return map[string]any{"users": payloads}, nil
}

func (s *Service) GrantRole(ctx context.Context, session Session, userID, role string) (map[string]any, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	if !allowedRoles[role] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown role", nil)
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.store.GrantRole(ctx, userID, role); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": userPayload(user)}, nil
}

func (s *Service) RevokeRole(ctx context.Context, session Session, userID, role string) (map[string]any, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	if !allowedRoles[role] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown role", nil)
	}
	// The base role is permanent; an account is always at least an employee.
	if role == "employee" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "The employee role cannot be revoked", nil)
	}
	revoked, err := s.store.RevokeRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Role grant not found", nil)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": userPayload(user)}, nil
}

func (s *Service) DeleteUser(ctx context.Context, session Session, userID string) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	if userID == session.UserID {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "You cannot delete your own account", nil)
	}
	deleted, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "User not found", nil)
	}
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		log.Printf("app: revoke sessions for deleted user %s: %v", userID, err)
	}
	return nil
}

// --- departments ---

func (s *Service) CreateDepartment(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Department name is required", nil)
	}

	department := store.Department{ID: util.NewID("dep"), Name: name, Description: strings.TrimSpace(description)}
	if err := s.store.CreateDepartment(ctx, department); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domainError(http.StatusConflict, "CONFLICT", "A department with this name already exists", nil)
		}
		return nil, err
	}
	created, err := s.store.GetDepartment(ctx, department.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"department": departmentPayload(created)}, nil
}

func (s *Service) ListDepartments(ctx context.Context, session Session) (map[string]any, error) {
	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(departments))
	for _, d := range departments {
		payloads = append(payloads, departmentPayload(d))
	}
	return map[string]any{"departments": payloads}, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, session Session, id, name, description string) (map[string]any, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" && description == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Nothing to update", nil)
	}
	changed, err := s.store.UpdateDepartment(ctx, id, name, description)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domainError(http.StatusConflict, "CONFLICT", "A department with this name already exists", nil)
		}
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Department not found", nil)
	}
	department, err := s.store.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"department": departmentPayload(department)}, nil
}

func (s *Service) DeleteDepartment(ctx context.Context, session Session, id string) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	deleted, err := s.store.DeleteDepartment(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Department not found", nil)
	}
	return nil
}

func (s *Service) AddDepartmentAdmin(ctx context.Context, session Session, departmentID, userID string) (map[string]any, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDepartment(ctx, departmentID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "User does not exist", nil)
		}
		return nil, err
	}
	if err := s.store.AddDepartmentAdmin(ctx, departmentID, userID); err != nil {
		return nil, err
	}
	return s.ListDepartmentAdmins(ctx, session, departmentID)
}

func (s *Service) RemoveDepartmentAdmin(ctx context.Context, session Session, departmentID, userID string) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	removed, err := s.store.RemoveDepartmentAdmin(ctx, departmentID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Department admin link not found", nil)
	}
	return nil
}

func (s *Service) ListDepartmentAdmins(ctx context.Context, session Session, departmentID string) (map[string]any, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDepartment(ctx, departmentID); err != nil {
		return nil, err
	}
	admins, err := s.store.ListDepartmentAdmins(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(admins))
	for _, a := range admins {
		payloads = append(payloads, map[string]any{
			"id":          a.ID,
			"displayName": a.DisplayName,
			"email":       a.Email,
		})
	}
	return map[string]any{"admins": payloads}, nil
}

func departmentPayload(d store.Department) map[string]any {
	return map[string]any{
		"id":          d.ID,
		"name":        d.Name,
		"description": d.Description,
		"createdAt":   d.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":   d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
