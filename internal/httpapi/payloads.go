package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
)

type eventRequest struct {
	Title      string `json:"title"`
	TemplateID string `json:"template_id"`
	eventpage.Attributes
}

func (request eventRequest) toInput() eventpage.Input {
	return eventpage.Input{
		Title:      request.Title,
		TemplateID: request.TemplateID,
		Attributes: request.Attributes,
	}
}

type eventPayload struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	TemplateID string    `json:"template_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	eventpage.Attributes
}

func newEventPayload(event eventpage.Event) eventPayload {
	return eventPayload{
		ID:         event.EventID,
		UserID:     event.UserID,
		Title:      event.Title,
		Slug:       event.Slug,
		TemplateID: event.TemplateID,
		CreatedAt:  event.CreatedAt,
		UpdatedAt:  event.UpdatedAt,
		Attributes: event.Attributes,
	}
}

// publicEventPayload omits the owner.
type publicEventPayload struct {
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	TemplateID string `json:"template_id"`
	eventpage.Attributes
}

type profilePayload struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	EventCredits int64     `json:"event_credits"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type transactionPayload struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	EventID     string    `json:"event_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type profileResponse struct {
	Profile      profilePayload       `json:"profile"`
	Transactions []transactionPayload `json:"transactions"`
}

func newProfileResponse(profile ledger.UserProfile, transactions []ledger.Transaction) profileResponse {
	entries := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		entries = append(entries, transactionPayload{
			ID:          transaction.TransactionID,
			Amount:      transaction.Amount.Int64(),
			Type:        transaction.Type.String(),
			Description: transaction.Description,
			EventID:     transaction.EventID.String(),
			CreatedAt:   transaction.CreatedAt,
		})
	}
	return profileResponse{
		Profile: profilePayload{
			ID:           profile.ProfileID,
			UserID:       profile.UserID.String(),
			Email:        profile.Email,
			EventCredits: profile.EventCredits.Int64(),
			CreatedAt:    profile.CreatedAt,
			UpdatedAt:    profile.UpdatedAt,
		},
		Transactions: entries,
	}
}

type identityWebhook struct {
	Type string `json:"type"`
	Data struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"data"`
}

type paymentWebhook struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID  string `json:"user_id"`
		Credits int64  `json:"credits"`
		PlanID  string `json:"plan_id"`
	} `json:"data"`
}
