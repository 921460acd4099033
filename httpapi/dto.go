package httpapi

import (
	"time"

	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/auth"
	"github.com/kidwon/lifetree-app-api/matching"
	"github.com/kidwon/lifetree-app-api/requirement"
	"github.com/kidwon/lifetree-app-api/result"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func newUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: formatTime(u.CreatedAt),
	}
}

func newUserResponses(users []auth.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	return out
}

type updateProfileRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passkeyLoginOptionsRequest struct {
	Email string `json:"email"`
}

type credentialResponse struct {
	ID           string `json:"id"`
	CredentialID string `json:"credentialId"`
	Name         string `json:"name"`
	CreatedAt    string `json:"createdAt"`
}

type requirementResponse struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	Description         string  `json:"description"`
	Status              string  `json:"status"`
	Agreement           *string `json:"agreement,omitempty"`
	AgreementButtonText string  `json:"agreementButtonText"`
	CreatedBy           string  `json:"createdBy"`
	CreatedAt           string  `json:"createdAt"`
	UpdatedAt           string  `json:"updatedAt"`
}

func newRequirementResponse(v requirement.View) requirementResponse {
	return requirementResponse{
		ID:                  v.ID,
		Title:               v.Title,
		Description:         v.Description,
		Status:              string(v.Status),
		Agreement:           v.Agreement,
		AgreementButtonText: v.AgreementButtonText,
		CreatedBy:           v.CreatedBy,
		CreatedAt:           formatTime(v.CreatedAt),
		UpdatedAt:           formatTime(v.UpdatedAt),
	}
}

type requirementListResponse struct {
	Items    []requirementResponse `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
}

type createRequirementRequest struct {
	Title               string  `json:"title"`
	Description         string  `json:"description"`
	Agreement           *string `json:"agreement"`
	AgreementButtonText *string `json:"agreementButtonText"`
}

type updateRequirementRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type agreementRequest struct {
	Agreement  *string `json:"agreement"`
	ButtonText *string `json:"agreementButtonText"`
}

type applicationResponse struct {
	ID            string `json:"id"`
	RequirementID string `json:"requirementId"`
	ApplicantID   string `json:"applicantId"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func newApplicationResponse(v application.View) applicationResponse {
	return applicationResponse{
		ID:            v.ID,
		RequirementID: v.RequirementID,
		ApplicantID:   v.ApplicantID,
		Status:        string(v.Status),
		CreatedAt:     formatTime(v.CreatedAt),
		UpdatedAt:     formatTime(v.UpdatedAt),
	}
}

type identityResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func newIdentityResponse(i matching.Identity) identityResponse {
	return identityResponse{ID: i.ID, Name: i.Name, Email: i.Email}
}

type ownerRowResponse struct {
	Requirement     requirementResponse  `json:"requirement"`
	Application     *applicationResponse `json:"application,omitempty"`
	Applicant       *identityResponse    `json:"applicant,omitempty"`
	PendingCount    int                  `json:"pendingCount"`
	PendingApproval bool                 `json:"pendingApproval"`
}

func newOwnerRows(rows []matching.OwnerRow) []ownerRowResponse {
	out := make([]ownerRowResponse, 0, len(rows))
	for _, row := range rows {
		item := ownerRowResponse{
			Requirement:     newRequirementResponse(row.Requirement),
			PendingCount:    row.PendingCount,
			PendingApproval: row.PendingApproval,
		}
		if row.Application != nil {
			app := newApplicationResponse(*row.Application)
			item.Application = &app
		}
		if row.Applicant != nil {
			who := newIdentityResponse(*row.Applicant)
			item.Applicant = &who
		}
		out = append(out, item)
	}
	return out
}

type applicantRowResponse struct {
	Requirement requirementResponse `json:"requirement"`
	Application applicationResponse `json:"application"`
	Owner       identityResponse    `json:"owner"`
}

func newApplicantRows(rows []matching.ApplicantRow) []applicantRowResponse {
	out := make([]applicantRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, applicantRowResponse{
			Requirement: newRequirementResponse(row.Requirement),
			Application: newApplicationResponse(row.Application),
			Owner:       newIdentityResponse(row.Owner),
		})
	}
	return out
}

type resultResponse struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	Status               string  `json:"status"`
	RelatedRequirementID *string `json:"relatedRequirementId,omitempty"`
	CreatedBy            string  `json:"createdBy"`
	CreatedAt            string  `json:"createdAt"`
	UpdatedAt            string  `json:"updatedAt"`
}

func newResultResponse(r result.Record) resultResponse {
	return resultResponse{
		ID:                   r.ID,
		Title:                r.Title,
		Description:          r.Description,
		Status:               string(r.Status),
		RelatedRequirementID: r.RelatedRequirementID,
		CreatedBy:            r.CreatedBy,
		CreatedAt:            formatTime(r.CreatedAt),
		UpdatedAt:            formatTime(r.UpdatedAt),
	}
}

func newResultResponses(records []result.Record) []resultResponse {
	out := make([]resultResponse, 0, len(records))
	for _, r := range records {
		out = append(out, newResultResponse(r))
	}
	return out
}

type createResultRequest struct {
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	RelatedRequirementID *string `json:"relatedRequirementId"`
}

type updateResultRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type resultStatusRequest struct {
	Status string `json:"status"`
}
