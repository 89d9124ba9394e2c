package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/payment"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleTemplates(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"templates": eventpage.Templates()})
}

func (handler *httpHandler) handlePlans(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"plans": payment.Plans()})
}

func (handler *httpHandler) handlePublicEvent(ctx *gin.Context) {
	event, err := handler.events.GetBySlug(ctx.Request.Context(), ctx.Param("slug"))
	if err != nil {
		handler.respondError(ctx, "get_public_event", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": publicEventPayload{
		Title:      event.Title,
		Slug:       event.Slug,
		TemplateID: event.TemplateID,
		Attributes: event.Attributes,
	}})
}

func (handler *httpHandler) handleProfile(ctx *gin.Context) {
	userID, email, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	profile, err := handler.ledger.EnsureProfile(ctx.Request.Context(), userID, email)
	if err != nil {
		handler.respondError(ctx, "get_profile", err)
		return
	}
	transactions, err := handler.ledger.ListTransactions(ctx.Request.Context(), userID, recentTransactionsLimit)
	if err != nil {
		handler.respondError(ctx, "get_profile", err)
		return
	}
	ctx.JSON(http.StatusOK, newProfileResponse(profile, transactions))
}

func (handler *httpHandler) handleListEvents(ctx *gin.Context) {
	userID, _, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	events, err := handler.events.List(ctx.Request.Context(), userID.String())
	if err != nil {
		handler.respondError(ctx, "list_events", err)
		return
	}
	payloads := make([]eventPayload, 0, len(events))
	for _, event := range events {
		payloads = append(payloads, newEventPayload(event))
	}
	ctx.JSON(http.StatusOK, gin.H{"events": payloads})
}

func (handler *httpHandler) handleCreateEvent(ctx *gin.Context) {
	userID, email, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	var request eventRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	event, err := handler.creator.CreateEventWithCredit(ctx.Request.Context(), userID, email, request.toInput())
	if err != nil {
		handler.respondError(ctx, "create_event", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"event": newEventPayload(event)})
}

func (handler *httpHandler) handleGetEvent(ctx *gin.Context) {
	userID, _, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	event, err := handler.events.Get(ctx.Request.Context(), ctx.Param("id"), userID.String())
	if err != nil {
		handler.respondError(ctx, "get_event", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": newEventPayload(event)})
}

func (handler *httpHandler) handleUpdateEvent(ctx *gin.Context) {
	userID, _, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	var request eventRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	event, err := handler.events.Update(ctx.Request.Context(), ctx.Param("id"), userID.String(), request.toInput())
	if err != nil {
		handler.respondError(ctx, "update_event", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": newEventPayload(event)})
}

func (handler *httpHandler) handleDeleteEvent(ctx *gin.Context) {
	userID, _, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	if err := handler.events.Delete(ctx.Request.Context(), ctx.Param("id"), userID.String()); err != nil {
		handler.respondError(ctx, "delete_event", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
