package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfront-hq/shopfront/internal/audit"
	"github.com/shopfront-hq/shopfront/internal/bots"
	"github.com/shopfront-hq/shopfront/internal/platform/database"
	"github.com/shopfront-hq/shopfront/internal/platform/middleware"
)

const maxImportSize = 10 << 20

// Handler serves /api/v1/bots/{slug}/categories and /products.
type Handler struct {
	pool     *pgxpool.Pool
	bots     *bots.Store
	store    *Store
	auditLog audit.Logger
}

func NewHandler(pool *pgxpool.Pool, botStore *bots.Store, store *Store, auditLog audit.Logger) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{pool: pool, bots: botStore, store: store, auditLog: auditLog}
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type photoRequest struct {
	ImageURL string `json:"image_url"`
	IsMain   bool   `json:"is_main"`
}

// withBot resolves {slug} and runs fn inside the tenant transaction.
func (h *Handler) withBot(r *http.Request, fn func(ctx context.Context, q database.Querier, b *bots.Bot) error) error {
	return database.WithTenantTx(r.Context(), h.pool, middleware.GetTenantID(r.Context()),
		func(ctx context.Context, q database.Querier) error {
			b, err := h.bots.GetBySlug(ctx, q, r.PathValue("slug"))
			if err != nil {
				return err
			}
			return fn(ctx, q, b)
		})
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	var list []Category
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		list, err = h.store.ListCategories(ctx, q, b.ID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []Category{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var c *Category
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		c, err = h.store.CreateCategory(ctx, q, b.ID, req.Name, req.Description)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionCategoryCreated, "category", c.ID, map[string]any{"name": c.Name}))
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var c *Category
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		if !validID(r.PathValue("id")) {
			return ErrCategoryNotFound
		}
		var err error
		c, err = h.store.UpdateCategory(ctx, q, b.ID, r.PathValue("id"), req.Name, req.Description)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionCategoryUpdated, "category", c.ID, map[string]any{"name": c.Name}))
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		if !validID(id) {
			return ErrCategoryNotFound
		}
		return h.store.DeleteCategory(ctx, q, b.ID, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionCategoryDeleted, "category", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	var list []*Product
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		list, err = h.store.ListProducts(ctx, q, b.ID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*Product{}
	}
	writeJSON(w, http.StatusOK, list)
}

type productResponse struct {
	*Product
	Price      string  `json:"price"`
	FinalPrice string  `json:"final_price"`
	Photos     []Photo `json:"photos,omitempty"`
}

func newProductResponse(p *Product, photos []Photo) productResponse {
	return productResponse{
		Product:    p,
		Price:      FormatCents(p.PriceCents),
		FinalPrice: FormatCents(p.FinalPriceCents()),
		Photos:     photos,
	}
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	var resp productResponse
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		p, err := h.store.GetProduct(ctx, q, b.ID, r.PathValue("id"))
		if err != nil {
			return err
		}
		photos, err := h.store.ListPhotos(ctx, q, p.ID)
		if err != nil {
			return err
		}
		resp = newProductResponse(p, photos)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var p *Product
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		var err error
		p, err = h.store.CreateProduct(ctx, q, b.ID, in)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionProductCreated, "product", p.ID, map[string]any{"name": p.Name, "slug": p.Slug}))
	writeJSON(w, http.StatusCreated, newProductResponse(p, nil))
}

func (h *Handler) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var p *Product
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		if !validID(r.PathValue("id")) {
			return ErrProductNotFound
		}
		var err error
		p, err = h.store.UpdateProduct(ctx, q, b.ID, r.PathValue("id"), in)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionProductUpdated, "product", p.ID, nil))
	writeJSON(w, http.StatusOK, newProductResponse(p, nil))
}

func (h *Handler) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		if !validID(id) {
			return ErrProductNotFound
		}
		return h.store.DeleteProduct(ctx, q, b.ID, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionProductDeleted, "product", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAddPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)
	var req photoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var ph *Photo
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		p, err := h.store.GetProduct(ctx, q, b.ID, r.PathValue("id"))
		if err != nil {
			return err
		}
		ph, err = h.store.AddPhoto(ctx, q, p.ID, req.ImageURL, req.IsMain)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ph)
}

func (h *Handler) HandleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	err := h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		p, err := h.store.GetProduct(ctx, q, b.ID, r.PathValue("id"))
		if err != nil {
			return err
		}
		if !validID(r.PathValue("photoID")) {
			return ErrPhotoNotFound
		}
		return h.store.DeletePhoto(ctx, q, p.ID, r.PathValue("photoID"))
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImport reads a multipart "file" upload and creates its products in
// one transaction.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file upload"})
		return
	}
	defer func() { _ = file.Close() }()

	rows, err := ParseImport(header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	var created int
	var botID string
	err = h.withBot(r, func(ctx context.Context, q database.Querier, b *bots.Bot) error {
		botID = b.ID
		var err error
		created, err = h.store.Import(ctx, q, b.ID, rows)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.auditLog.Log(r.Context(), audit.API(r.Context(), middleware.GetTenantID(r.Context()),
		audit.ActionProductsImported, "bot", botID, map[string]any{"count": created, "file": header.Filename}))
	writeJSON(w, http.StatusCreated, map[string]int{"imported": created})
}

// HandleImportTemplate serves an empty import spreadsheet.
func (h *Handler) HandleImportTemplate(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := WriteImportTemplate(&buf); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "building template failed"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="products.xlsx"`)
	_, _ = buf.WriteTo(w)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bots.ErrBotNotFound), errors.Is(err, ErrCategoryNotFound),
		errors.Is(err, ErrProductNotFound), errors.Is(err, ErrPhotoNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrCategoryExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrRequiredField), errors.Is(err, ErrNonPositive), errors.Is(err, ErrDiscountTooHigh),
		errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrUnknownCategory), errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrBadLayout):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "catalog request failed"})
	}
}

func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
