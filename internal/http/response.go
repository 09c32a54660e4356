package http

import (
	"authdesk/internal/domain"
	"authdesk/internal/poll"
	"authdesk/internal/service"
)

// FormResponse echoes the form without the password fields.
type FormResponse struct {
	Email    string          `json:"email"`
	FullName string          `json:"fullName"`
	UserType domain.UserType `json:"userType"`
}

type UserResponse struct {
	ID        int64           `json:"id"`
	Email     string          `json:"email"`
	FullName  string          `json:"fullName"`
	UserType  domain.UserType `json:"userType"`
	CreatedAt string          `json:"createdAt"`
}

type StateResponse struct {
	State  service.State           `json:"state"`
	Mode   domain.Mode             `json:"mode"`
	Form   FormResponse            `json:"form"`
	Errors domain.ValidationErrors `json:"errors"`
	User   *UserResponse           `json:"user,omitempty"`
	Admin  bool                    `json:"admin"`
}

type PollResponse struct {
	Categories []string       `json:"categories"`
	Counts     map[string]int `json:"counts"`
}

func stateToResponse(s service.Snapshot) StateResponse {
	resp := StateResponse{
		State: s.State,
		Mode:  s.Mode,
		Form: FormResponse{
			Email:    s.Form.Email,
			FullName: s.Form.FullName,
			UserType: s.Form.UserType,
		},
		Errors: s.Errors,
		Admin:  s.IsAdmin(),
	}
	if resp.Errors == nil {
		resp.Errors = domain.ValidationErrors{}
	}
	if s.User != nil {
		resp.User = &UserResponse{
			ID:        s.User.ID,
			Email:     s.User.Email,
			FullName:  s.User.FullName,
			UserType:  s.User.UserType,
			CreatedAt: domain.FormatTimestamp(s.User.CreatedAt),
		}
	}
	return resp
}

func pollToResponse(p poll.Poller) PollResponse {
	return PollResponse{
		Categories: p.Categories(),
		Counts:     p.Snapshot(),
	}
}
