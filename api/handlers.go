package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"contentflow-api/board"
	"contentflow-api/domain"
)

const mutationMaxSize = 64 * 1024 // 64 KiB

const idempotencyKeyHeader = "Idempotency-Key"

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards BoardService, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/board", getBoard(boards, auth))
	e.POST("/api/board/refresh", refreshBoard(boards, auth))
	e.GET("/api/content", getContent(boards, auth))
	e.POST("/api/content", createContent(boards, auth, deduper))
	e.PATCH("/api/content/:id", patchContent(boards, auth, deduper))
	e.DELETE("/api/content/:id", deleteContent(boards, auth, deduper))
	e.POST("/api/content/:id/move", moveContent(boards, auth, deduper, logger))
	e.GET("/healthz", healthz())
}

type boardColumn struct {
	Stage domain.Stage         `json:"stage"`
	Items []domain.ContentItem `json:"items"`
}

type boardResponse struct {
	Columns []boardColumn `json:"columns"`
}

type itemsResponse struct {
	Items []domain.ContentItem `json:"items"`
}

type mutationResponse struct {
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
	Duplicate      bool                `json:"duplicate,omitempty"`
	Item           *domain.ContentItem `json:"item,omitempty"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		filter, ferr := filterFromQuery(c)
		if ferr != nil {
			return c.String(http.StatusBadRequest, ferr.Error())
		}

		view, err := boards.View(c.Request().Context(), userID, filter)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load board")
		}
		return c.JSON(http.StatusOK, boardResponseFromView(view))
	}
}

func boardResponseFromView(view board.View) boardResponse {
	resp := boardResponse{Columns: make([]boardColumn, 0, len(domain.Stages()))}
	for _, st := range domain.Stages() {
		col := boardColumn{Stage: st, Items: make([]domain.ContentItem, 0, len(view.Index[st]))}
		for _, id := range view.Index[st] {
			if it, ok := view.Items[id]; ok {
				col.Items = append(col.Items, it)
			}
		}
		resp.Columns = append(resp.Columns, col)
	}
	return resp
}

func filterFromQuery(c echo.Context) (board.Filter, error) {
	f := board.Filter{Query: strings.TrimSpace(c.QueryParam("q"))}
	for _, raw := range splitCSV(c.QueryParam("stage")) {
		st := domain.Stage(raw)
		if !st.Valid() {
			return board.Filter{}, errors.New("unknown stage: " + raw)
		}
		f.Stages = append(f.Stages, st)
	}
	for _, raw := range splitCSV(c.QueryParam("priority")) {
		p := domain.Priority(raw)
		if !p.Valid() {
			return board.Filter{}, errors.New("unknown priority: " + raw)
		}
		f.Priorities = append(f.Priorities, p)
	}
	return f, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func refreshBoard(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := boards.Refresh(c.Request().Context(), userID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to refresh board")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getContent(boards BoardService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		items, err := boards.Items(c.Request().Context(), userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to list content")
		}
		return c.JSON(http.StatusOK, itemsResponse{Items: items})
	}
}

func createContent(boards BoardService, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var draft domain.ItemDraft
		if err := decodeBody(c, &draft); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		draft.Title = strings.TrimSpace(draft.Title)
		if draft.Title == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}
		if draft.Priority == "" {
			draft.Priority = domain.PriorityMedium
		}
		if !draft.Priority.Valid() {
			return c.String(http.StatusBadRequest, "unknown priority")
		}
		if strings.TrimSpace(draft.Platform) == "" {
			return c.String(http.StatusBadRequest, "platform is required")
		}

		key, duplicate, err := recordIdempotencyKey(c, deduper, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "idempotency check failed")
		}
		if duplicate {
			return c.JSON(http.StatusOK, mutationResponse{IdempotencyKey: key, Duplicate: true})
		}

		item, err := boards.Create(ctx, userID, draft)
		if err != nil {
			releaseKey(c, deduper, userID, key)
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create content")
		}
		return c.JSON(http.StatusAccepted, mutationResponse{IdempotencyKey: key, Item: &item})
	}
}

func patchContent(boards BoardService, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		var patch domain.ItemPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if patch.Stage != nil && !patch.Stage.Valid() {
			return c.String(http.StatusBadRequest, "unknown stage")
		}
		if patch.Priority != nil && !patch.Priority.Valid() {
			return c.String(http.StatusBadRequest, "unknown priority")
		}

		key, duplicate, err := recordIdempotencyKey(c, deduper, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "idempotency check failed")
		}
		if duplicate {
			return c.JSON(http.StatusOK, mutationResponse{IdempotencyKey: key, Duplicate: true})
		}

		item, err := boards.Update(ctx, userID, id, patch)
		if err != nil {
			releaseKey(c, deduper, userID, key)
			return mutationError(c, err, "failed to update content")
		}
		return c.JSON(http.StatusAccepted, mutationResponse{IdempotencyKey: key, Item: &item})
	}
}

func deleteContent(boards BoardService, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")

		key, duplicate, err := recordIdempotencyKey(c, deduper, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "idempotency check failed")
		}
		if duplicate {
			return c.JSON(http.StatusOK, mutationResponse{IdempotencyKey: key, Duplicate: true})
		}

		if err := boards.Delete(ctx, userID, id); err != nil {
			releaseKey(c, deduper, userID, key)
			return mutationError(c, err, "failed to delete content")
		}
		return c.NoContent(http.StatusAccepted)
	}
}

type moveBody struct {
	SourceStage domain.Stage `json:"sourceStage"`
	SourceIndex int          `json:"sourceIndex"`
	DestStage   domain.Stage `json:"destStage"`
	DestIndex   int          `json:"destIndex"`
}

func moveContent(boards BoardService, auth Authenticator, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newMoveRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		var body moveBody
		if derr := decodeBody(c, &body); derr != nil {
			metrics.SetErrorStage("decode")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}

		dedupeStart := time.Now()
		key, duplicate, derr := recordIdempotencyKey(c, deduper, userID)
		metrics.ObserveDedupe(time.Since(dedupeStart))
		if derr != nil {
			metrics.SetErrorStage("dedupe")
			c.Logger().Error(derr)
			err = c.String(http.StatusInternalServerError, "idempotency check failed")
			return err
		}
		if duplicate {
			metrics.SetOutcome("duplicate")
			err = c.JSON(http.StatusOK, mutationResponse{IdempotencyKey: key, Duplicate: true})
			return err
		}

		req := board.MoveRequest{
			ItemID:      c.Param("id"),
			SourceStage: body.SourceStage,
			SourceIndex: body.SourceIndex,
			DestStage:   body.DestStage,
			DestIndex:   body.DestIndex,
		}

		applyStart := time.Now()
		moveErr := boards.Move(ctx, userID, req)
		metrics.ObserveApply(time.Since(applyStart))
		if moveErr != nil {
			releaseKey(c, deduper, userID, key)
			switch {
			case errors.Is(moveErr, board.ErrInvalidMove):
				// Stale gesture; the client re-derives its view and snaps back.
				metrics.SetOutcome("invalid")
				err = c.String(http.StatusConflict, "stale move: refresh the board")
			case errors.Is(moveErr, board.ErrMoveInProgress):
				metrics.SetOutcome("busy")
				err = c.String(http.StatusTooManyRequests, "a change for this item is still saving")
			default:
				metrics.SetOutcome("error")
				metrics.SetErrorStage("board")
				c.Logger().Error(moveErr)
				err = c.String(http.StatusInternalServerError, "failed to move content")
			}
			return err
		}

		metrics.SetOutcome("applied")
		err = c.JSON(http.StatusAccepted, mutationResponse{IdempotencyKey: key})
		return err
	}
}

// mutationError maps board engine errors onto HTTP statuses shared by the
// update and delete routes.
func mutationError(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, board.ErrItemNotFound):
		return c.String(http.StatusNotFound, "content item not found")
	case errors.Is(err, board.ErrMoveInProgress):
		return c.String(http.StatusTooManyRequests, "a change for this item is still saving")
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, fallback)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, mutationMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// recordIdempotencyKey registers the request's idempotency key, generating
// one when the client sent none. Returns duplicate=true when the key was
// already seen.
func recordIdempotencyKey(c echo.Context, deduper Deduper, userID string) (string, bool, error) {
	key := strings.TrimSpace(c.Request().Header.Get(idempotencyKeyHeader))
	if key == "" {
		key = generatedIdempotencyKey()
	}
	if deduper == nil {
		return key, false, nil
	}
	added, err := deduper.Add(c.Request().Context(), userID, key)
	if err != nil {
		return key, false, err
	}
	return key, !added, nil
}

func releaseKey(c echo.Context, deduper Deduper, userID, key string) {
	if deduper == nil {
		return
	}
	if err := deduper.Remove(c.Request().Context(), userID, key); err != nil {
		c.Logger().Errorf("idempotency rollback failed: %v", err)
	}
}
