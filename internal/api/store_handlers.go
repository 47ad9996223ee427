package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pbaille/studylog/internal/domain"
)

// NameRequest is the body of create and rename calls
type NameRequest struct {
	Name string `json:"name"`
}

// EntryView is a transcript entry with its index and the text to render
type EntryView struct {
	domain.Entry
	Index   int    `json:"index"`
	PairID  string `json:"pair_id"`
	Display string `json:"display"`
}

// EntriesResponse is the response body for GET .../entries
type EntriesResponse struct {
	Location domain.Location `json:"location"`
	Entries  []EntryView     `json:"entries"`
}

// UpdateEntryRequest is the body of PATCH .../entries/:index
type UpdateEntryRequest struct {
	Collapsed *bool   `json:"collapsed,omitempty"`
	Memo      *string `json:"memo,omitempty"`
}

// MoveRequest names the destination unit of a move
type MoveRequest struct {
	Subject string `json:"subject"`
	Unit    string `json:"unit"`
}

func bindName(c echo.Context) (string, error) {
	var req NameRequest
	if err := c.Bind(&req); err != nil {
		return "", badRequest("invalid request body")
	}
	if domain.NormalizeName(req.Name) == "" {
		return "", badRequest("name is required")
	}
	return req.Name, nil
}

func (s *Server) handleTaxonomy(c echo.Context) error {
	tax, err := s.store.Taxonomy(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, tax)
}

func (s *Server) handleCreateSubject(c echo.Context) error {
	name, err := bindName(c)
	if err != nil {
		return err
	}
	if err := s.store.CreateSubject(c.Request().Context(), name); err != nil {
		return s.httpError(err)
	}
	return s.handleTaxonomyStatus(c, http.StatusCreated)
}

func (s *Server) handleRenameSubject(c echo.Context) error {
	name, err := bindName(c)
	if err != nil {
		return err
	}
	if err := s.store.RenameSubject(c.Request().Context(), param(c, "subject"), name); err != nil {
		return s.httpError(err)
	}
	return s.handleTaxonomy(c)
}

func (s *Server) handleDeleteSubject(c echo.Context) error {
	if err := s.store.DeleteSubject(c.Request().Context(), param(c, "subject")); err != nil {
		return s.httpError(err)
	}
	return s.handleTaxonomy(c)
}

func (s *Server) handleCreateUnit(c echo.Context) error {
	name, err := bindName(c)
	if err != nil {
		return err
	}
	if err := s.store.CreateUnit(c.Request().Context(), param(c, "subject"), name); err != nil {
		return s.httpError(err)
	}
	return s.handleTaxonomyStatus(c, http.StatusCreated)
}

func (s *Server) handleRenameUnit(c echo.Context) error {
	name, err := bindName(c)
	if err != nil {
		return err
	}
	if err := s.store.RenameUnit(c.Request().Context(), param(c, "subject"), param(c, "unit"), name); err != nil {
		return s.httpError(err)
	}
	return s.handleTaxonomy(c)
}

func (s *Server) handleDeleteUnit(c echo.Context) error {
	if err := s.store.DeleteUnit(c.Request().Context(), param(c, "subject"), param(c, "unit")); err != nil {
		return s.httpError(err)
	}
	return s.handleTaxonomy(c)
}

func (s *Server) handleTaxonomyStatus(c echo.Context, status int) error {
	tax, err := s.store.Taxonomy(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(status, tax)
}

func (s *Server) handleDays(c echo.Context) error {
	days, err := s.store.Days(c.Request().Context())
	if err != nil {
		return s.httpError(err)
	}
	if days == nil {
		days = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"days": days})
}

func (s *Server) handleEntries(c echo.Context) error {
	loc, err := location(c)
	if err != nil {
		return err
	}
	return s.writeEntries(c, loc)
}

func (s *Server) writeEntries(c echo.Context, loc domain.Location) error {
	pairs, err := s.store.Pairs(c.Request().Context(), loc)
	if err != nil {
		return s.httpError(err)
	}

	views := make([]EntryView, 0, len(pairs)*2)
	for _, p := range pairs {
		for _, e := range p.Entries() {
			views = append(views, EntryView{Entry: e, Index: len(views), PairID: p.ID, Display: e.Display()})
		}
	}
	return c.JSON(http.StatusOK, EntriesResponse{Location: loc, Entries: views})
}

func (s *Server) handleUpdateEntry(c echo.Context) error {
	loc, err := location(c)
	if err != nil {
		return err
	}
	index, err := indexParam(c)
	if err != nil {
		return err
	}

	var req UpdateEntryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if req.Collapsed == nil && req.Memo == nil {
		return badRequest("collapsed or memo is required")
	}

	ctx := c.Request().Context()
	if req.Collapsed != nil {
		if err := s.store.SetCollapsed(ctx, loc, index, *req.Collapsed); err != nil {
			return s.httpError(err)
		}
	}
	if req.Memo != nil {
		if err := s.store.SetMemo(ctx, loc, index, *req.Memo); err != nil {
			return s.httpError(err)
		}
	}
	return s.writeEntries(c, loc)
}

func (s *Server) handleDeletePair(c echo.Context) error {
	loc, err := location(c)
	if err != nil {
		return err
	}
	index, err := indexParam(c)
	if err != nil {
		return err
	}
	if err := s.store.DeletePair(c.Request().Context(), loc, index); err != nil {
		return s.httpError(err)
	}
	return s.writeEntries(c, loc)
}

func (s *Server) handleMovePair(c echo.Context) error {
	from, err := location(c)
	if err != nil {
		return err
	}
	index, err := indexParam(c)
	if err != nil {
		return err
	}

	var req MoveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	to := domain.UnitLocation(req.Subject, req.Unit)
	if !to.IsUnit() {
		return badRequest("subject and unit are required")
	}

	pair, err := s.store.MovePair(c.Request().Context(), from, to, index)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, pair)
}
