// Package http realizes the web-shell boundary over fiber. Every operation
// takes the tenant id and logical collection name from the path, and either
// returns a success payload or the uniform {error, reason, detail} envelope.
package http

import (
	"encoding/json"
	"net/url"

	"mws-server/internal/mws/domain/model"
	"mws-server/internal/mws/domain/repository"
	"mws-server/internal/mws/usecase"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"
	"mws-server/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
)

// Handler serves the /mws route tree.
type Handler struct {
	uc       usecase.ShellUsecase
	limiter  repository.RateLimiter
	sessions *SessionManager
	log      logger.Logger
}

// NewHandler creates the boundary handler.
func NewHandler(uc usecase.ShellUsecase, limiter repository.RateLimiter, sessions *SessionManager, log logger.Logger) *Handler {
	return &Handler{
		uc:       uc,
		limiter:  limiter,
		sessions: sessions,
		log:      log.WithComponent("mws_router"),
	}
}

// RegisterRoutes mounts the web-shell API under /mws.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	mws := app.Group("/mws", noCache, h.sessions.Middleware())

	mws.Post("/", h.CreateResource)
	mws.Post("/:res_id/keep-alive", h.checkAccess, h.KeepAlive)

	db := mws.Group("/:res_id/db", h.checkAccess)
	db.Get("/getCollectionNames", h.GetCollectionNames)
	db.Delete("/", h.DropDatabase)

	coll := db.Group("/:collection_name")
	coll.Get("/find", h.rateLimit, h.Find)
	coll.Get("/count", h.rateLimit, h.Count)
	coll.Get("/aggregate", h.Aggregate)
	coll.Post("/insert", h.rateLimit, h.Insert)
	coll.Put("/update", h.rateLimit, h.Update)
	coll.Post("/save", h.rateLimit, h.Save)
	coll.Delete("/remove", h.rateLimit, h.Remove)
	coll.Delete("/drop", h.rateLimit, h.DropCollection)
}

// noCache keeps intermediaries from replaying shell responses.
func noCache(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
	return c.Next()
}

// checkAccess verifies the session owns the res_id in the path.
func (h *Handler) checkAccess(c *fiber.Ctx) error {
	if err := h.uc.VerifyAccess(c.UserContext(), c.Params("res_id"), SessionID(c)); err != nil {
		return renderError(c, err)
	}
	c.SetUserContext(utils.WithResID(c.UserContext(), c.Params("res_id")))
	return c.Next()
}

// rateLimit admits the request through the sliding-window limiter.
func (h *Handler) rateLimit(c *fiber.Ctx) error {
	if err := h.limiter.Admit(c.UserContext(), SessionID(c)); err != nil {
		return renderError(c, err)
	}
	return c.Next()
}

// CreateResource returns the session's resource id, creating the tenant on
// first contact. POST /mws/
func (h *Handler) CreateResource(c *fiber.Ctx) error {
	res, err := h.uc.CreateResource(c.UserContext(), SessionID(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(res)
}

// KeepAlive refreshes the tenant's activity timestamp.
// POST /mws/:res_id/keep-alive
func (h *Handler) KeepAlive(c *fiber.Ctx) error {
	if err := h.uc.KeepAlive(c.UserContext(), c.Params("res_id"), SessionID(c)); err != nil {
		return renderError(c, err)
	}
	return emptySuccess(c)
}

type findRequest struct {
	Query      bson.M         `json:"query"`
	Projection bson.M         `json:"projection"`
	Skip       int64          `json:"skip"`
	Limit      int64          `json:"limit"`
	Sort       map[string]int `json:"sort"`

	CursorID  int64 `json:"cursor_id"`
	Retrieved int64 `json:"retrieved"`
	Count     int64 `json:"count"`
	BatchSize int64 `json:"batch_size"`
}

// Find executes or resumes a paged query.
// GET /mws/:res_id/db/:collection_name/find
func (h *Handler) Find(c *fiber.Ctx) error {
	var req findRequest
	if err := parseGetJSON(c, &req); err != nil {
		return renderError(c, err)
	}

	args := model.FindArgs{
		Query:      req.Query,
		Projection: req.Projection,
		Skip:       req.Skip,
		Limit:      req.Limit,
		Sort:       sortDocument(req.Sort),
		CursorID:   req.CursorID,
		Retrieved:  req.Retrieved,
		Total:      req.Count,
		BatchSize:  req.BatchSize,
	}

	result, err := h.uc.Find(c.UserContext(), c.Params("res_id"), c.Params("collection_name"), args)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(result)
}

// Count returns the matching document count.
// GET /mws/:res_id/db/:collection_name/count
func (h *Handler) Count(c *fiber.Ctx) error {
	var req struct {
		Query bson.M `json:"query"`
		Skip  int64  `json:"skip"`
		Limit int64  `json:"limit"`
	}
	if err := parseGetJSON(c, &req); err != nil {
		return renderError(c, err)
	}

	count, err := h.uc.Count(c.UserContext(), c.Params("res_id"), c.Params("collection_name"),
		model.CountArgs{Query: req.Query, Skip: req.Skip, Limit: req.Limit})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// Insert writes one document or a list of documents.
// POST /mws/:res_id/db/:collection_name/insert
func (h *Handler) Insert(c *fiber.Ctx) error {
	var req struct {
		Document json.RawMessage `json:"document"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.Document) == 0 {
		return renderError(c, apperrors.NewBadRequest("'document' argument not found in the insert request"))
	}

	docs, err := decodeDocuments(req.Document)
	if err != nil {
		return renderError(c, err)
	}
	if err := h.uc.Insert(c.UserContext(), c.Params("res_id"), c.Params("collection_name"), docs); err != nil {
		return renderError(c, err)
	}
	return emptySuccess(c)
}

// Update applies an update with optional upsert/multi.
// PUT /mws/:res_id/db/:collection_name/update
func (h *Handler) Update(c *fiber.Ctx) error {
	var req struct {
		Query  bson.M `json:"query"`
		Update bson.M `json:"update"`
		Upsert bool   `json:"upsert"`
		Multi  bool   `json:"multi"`
	}
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, apperrors.NewBadRequest("update requires spec and document arguments"))
	}

	summary, err := h.uc.Update(c.UserContext(), c.Params("res_id"), c.Params("collection_name"),
		model.UpdateArgs{Query: req.Query, Update: req.Update, Upsert: req.Upsert, Multi: req.Multi})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(summary)
}

// Save inserts or replaces a single document.
// POST /mws/:res_id/db/:collection_name/save
func (h *Handler) Save(c *fiber.Ctx) error {
	var req struct {
		Document bson.M `json:"document"`
	}
	if err := c.BodyParser(&req); err != nil || req.Document == nil {
		return renderError(c, apperrors.NewBadRequest("'document' argument not found in the save request"))
	}

	summary, err := h.uc.Save(c.UserContext(), c.Params("res_id"), c.Params("collection_name"), req.Document)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(summary)
}

// Remove deletes matching documents.
// DELETE /mws/:res_id/db/:collection_name/remove
func (h *Handler) Remove(c *fiber.Ctx) error {
	var req struct {
		Constraint bson.M `json:"constraint"`
		JustOne    bool   `json:"just_one"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return renderError(c, apperrors.NewBadRequest("Error parsing JSON data"))
		}
	}

	summary, err := h.uc.Remove(c.UserContext(), c.Params("res_id"), c.Params("collection_name"),
		model.RemoveArgs{Constraint: req.Constraint, JustOne: req.JustOne})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(summary)
}

// Aggregate runs an aggregation pipeline.
// GET /mws/:res_id/db/:collection_name/aggregate
func (h *Handler) Aggregate(c *fiber.Ctx) error {
	var pipeline []bson.M
	if err := parseGetJSON(c, &pipeline); err != nil {
		return renderError(c, err)
	}

	result, err := h.uc.Aggregate(c.UserContext(), c.Params("res_id"), c.Params("collection_name"), pipeline)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"result": result})
}

// DropCollection drops one logical collection.
// DELETE /mws/:res_id/db/:collection_name/drop
func (h *Handler) DropCollection(c *fiber.Ctx) error {
	if err := h.uc.DropCollection(c.UserContext(), c.Params("res_id"), c.Params("collection_name")); err != nil {
		return renderError(c, err)
	}
	return emptySuccess(c)
}

// DropDatabase drops every collection of the tenant.
// DELETE /mws/:res_id/db
func (h *Handler) DropDatabase(c *fiber.Ctx) error {
	if err := h.uc.DropDatabase(c.UserContext(), c.Params("res_id")); err != nil {
		return renderError(c, err)
	}
	return emptySuccess(c)
}

// GetCollectionNames lists the tenant's logical collections.
// GET /mws/:res_id/db/getCollectionNames
func (h *Handler) GetCollectionNames(c *fiber.Ctx) error {
	names, err := h.uc.GetCollectionNames(c.UserContext(), c.Params("res_id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"result": names})
}

// renderError writes the uniform error envelope with the mapped status.
func renderError(c *fiber.Ctx, err error) error {
	mwsErr := apperrors.AsMWSError(err)
	return c.Status(mwsErr.HTTPStatus).JSON(mwsErr)
}

func emptySuccess(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// parseGetJSON decodes the operation arguments riding in the request's query
// string as a single URL-encoded JSON value. An empty query string decodes
// as an empty argument object.
func parseGetJSON(c *fiber.Ctx, out interface{}) error {
	raw := string(c.Request().URI().QueryString())
	if raw == "" {
		return nil
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if err := json.Unmarshal([]byte(decoded), out); err != nil {
		return apperrors.NewBadRequest("Error parsing JSON data").
			WithDetail("Invalid GET parameter data")
	}
	return nil
}

// decodeDocuments accepts a single document or a list of documents.
func decodeDocuments(raw json.RawMessage) ([]bson.M, error) {
	var many []bson.M
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one bson.M
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, apperrors.NewBadRequest("'document' argument is not a valid document or list of documents")
	}
	return []bson.M{one}, nil
}

// sortDocument preserves the requested keys as a driver sort document.
func sortDocument(sort map[string]int) bson.D {
	if len(sort) == 0 {
		return nil
	}
	doc := make(bson.D, 0, len(sort))
	for key, dir := range sort {
		doc = append(doc, bson.E{Key: key, Value: dir})
	}
	return doc
}
