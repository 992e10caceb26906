package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/diewo77/go-quotes/httpx"
	"github.com/diewo77/go-quotes/internal/logging"
	"github.com/diewo77/go-quotes/internal/models"
	"github.com/diewo77/go-quotes/internal/services"
	"github.com/diewo77/go-quotes/internal/store"
)

type ClientHandler struct {
	svc *services.ClientService
	log logging.Logger
}

func NewClientHandler(svc *services.ClientService, log logging.Logger) *ClientHandler {
	return &ClientHandler{svc: svc, log: log}
}

type clientRequest struct {
	Company      string `json:"company"`
	ContactName  string `json:"contact_name"`
	Abbreviation string `json:"abbreviation"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	City         string `json:"city"`
	ZipCode      string `json:"zip_code"`
	Country      string `json:"country"`
}

type clientView struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Company      string    `json:"company"`
	ContactName  string    `json:"contact_name"`
	Abbreviation *string   `json:"abbreviation"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	ZipCode      string    `json:"zip_code"`
	Country      string    `json:"country"`
	FullAddress  string    `json:"full_address"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newClientView(c *models.Client) clientView {
	v := clientView{
		ID:          c.ID,
		Name:        c.DisplayName(),
		Company:     c.Company,
		ContactName: c.ContactName,
		Email:       c.Email,
		Phone:       c.Phone,
		Address:     c.Address,
		City:        c.City,
		ZipCode:     c.ZipCode,
		Country:     c.Country,
		FullAddress: c.FullAddress(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.Abbreviation.IsSet() {
		abbr := c.Abbreviation.String()
		v.Abbreviation = &abbr
	}
	return v
}

func clientLocation(id uint) string {
	return "/clients/" + strconv.FormatUint(uint64(id), 10)
}

// decode reads a client from a JSON or form body.
func (h *ClientHandler) decode(r *http.Request) (services.ClientInput, error) {
	var req clientRequest
	if httpx.IsJSONBody(r) {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return services.ClientInput{}, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return services.ClientInput{}, err
		}
		req = clientRequest{
			Company:      r.FormValue("company"),
			ContactName:  r.FormValue("contact_name"),
			Abbreviation: r.FormValue("abbreviation"),
			Email:        r.FormValue("email"),
			Phone:        r.FormValue("phone"),
			Address:      r.FormValue("address"),
			City:         r.FormValue("city"),
			ZipCode:      r.FormValue("zip_code"),
			Country:      r.FormValue("country"),
		}
	}
	return services.ClientInput(req), nil
}

// List handles GET /clients?q=&limit=&page=.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	f := store.ClientFilter{Query: r.URL.Query().Get("q"), Page: page(r)}
	clients, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	items := make([]clientView, len(clients))
	for i := range clients {
		items[i] = newClientView(&clients[i])
	}
	httpx.JSON(w, http.StatusOK, httpx.ListResponse{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// Create handles POST /clients.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := h.decode(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", nil)
		return
	}
	c, err := h.svc.Create(r.Context(), in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	logging.FromContext(r.Context(), h.log).Info("client created", "client_id", c.ID)
	respond(w, r, http.StatusCreated, newClientView(c), clientLocation(c.ID))
}

// View handles GET /clients/{id}.
func (h *ClientHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newClientView(c))
}

// Update handles POST /clients/{id}.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	in, err := h.decode(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_body", nil)
		return
	}
	c, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		fail(w, r, h.log, err)
		return
	}
	respond(w, r, http.StatusOK, newClientView(c), clientLocation(c.ID))
}

// Delete handles POST /clients/{id}/delete. Clients with quotes are kept.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		fail(w, r, h.log, err)
		return
	}
	logging.FromContext(r.Context(), h.log).Info("client deleted", "client_id", id)
	if !httpx.WantsJSON(r) {
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
