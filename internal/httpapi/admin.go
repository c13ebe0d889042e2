package httpapi

import (
	"errors"
	"net/http"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/service"
)

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	st := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"user": actor,
		"lock": st.Lock().Status(),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	a.sessions.End(actor.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFromContext(r.Context()).Lock().Status())
}

func (a *API) handleLock(w http.ResponseWriter, r *http.Request) {
	lock := sessionFromContext(r.Context()).Lock()
	lock.Lock()
	writeJSON(w, http.StatusOK, lock.Status())
}

func (a *API) handleUnlock(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	if !a.unlockLimiter.Allow(actor.Username + "|" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many unlock attempts"))
		return
	}
	var req domain.UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.VerifyUnlock(r.Context(), actor.Username, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	lock := sessionFromContext(r.Context()).Lock()
	lock.Unlock()
	writeJSON(w, http.StatusOK, lock.Status())
}

func (a *API) handleCartGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFromContext(r.Context()).Cart())
}

func (a *API) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var line domain.CartLine
	if err := decodeJSON(r, &line); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := a.service.GetProduct(r.Context(), line.ProductID); err != nil {
		writeServiceError(w, err)
		return
	}
	cart, err := sessionFromContext(r.Context()).AddToCart(line)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (a *API) handleCartSetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, sizeID, err := stockKey(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cart, err := sessionFromContext(r.Context()).SetQuantity(productID, sizeID, req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (a *API) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	productID, sizeID, err := stockKey(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	cart, err := sessionFromContext(r.Context()).RemoveFromCart(productID, sizeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (a *API) handleCartClear(w http.ResponseWriter, r *http.Request) {
	sessionFromContext(r.Context()).ClearCart()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCartCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CartCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := sessionFromContext(r.Context()).Checkout(r.Context(), req, a.service.CreateSale)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.GetSettings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settings, err := a.service.UpdateSettings(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleUsersList(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.UserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.service.UpdateUser(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !user.Active {
		a.sessions.End(user.Username)
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	username, err := a.service.DeleteUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a.sessions.End(username)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req domain.PasswordChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.ChangePassword(r.Context(), id, req); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parsePositiveLimit(q.Get("limit"), 100, 500)
	items, err := a.service.ListAuditLogs(r.Context(), q.Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleDatabaseReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Confirm != "RESET" {
		writeError(w, http.StatusBadRequest, errors.New(`confirm must be "RESET"`))
		return
	}
	if err := a.service.ResetDatabase(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handlePrinters(w http.ResponseWriter, r *http.Request) {
	printers, err := a.printers.Browse(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if printers == nil {
		printers = []domain.Printer{}
	}
	writeJSON(w, http.StatusOK, printers)
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("event stream disabled"))
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	a.events.ServeWS(w, r, actor.Username)
}
