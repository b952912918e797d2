package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/wireflow/internal/diagram"
	"github.com/rendis/wireflow/internal/expressions"
	"github.com/rendis/wireflow/internal/render"
	"github.com/rendis/wireflow/internal/store"
	"github.com/rendis/wireflow/pkg/schema"
)

// handleItems lists, fetches, replaces or deletes stored items.
func (s *WireflowServer) handleItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	op, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError("op is required"), nil
	}
	if op == "games" {
		games, err := s.store.ListGames(ctx)
		if err != nil {
			return toolError("list games", err), nil
		}
		return marshalResult(map[string]any{"games": games})
	}

	gameID := req.GetString("game_id", "")
	if gameID == "" {
		return mcp.NewToolResultError("game_id is required"), nil
	}

	switch op {
	case "list":
		items, err := s.store.ListItems(ctx, gameID)
		if err != nil {
			return toolError("list items", err), nil
		}
		return marshalResult(map[string]any{"game_id": gameID, "items": items})

	case "get":
		id, ok := itemIDArg(req, "item_id")
		if !ok {
			return mcp.NewToolResultError("item_id is required"), nil
		}
		it, err := s.store.GetItem(ctx, gameID, id)
		if err != nil {
			return toolError("get item", err), nil
		}
		return marshalResult(it)

	case "put":
		return s.putItems(ctx, gameID, req.GetArguments()["items"])

	case "delete":
		id, ok := itemIDArg(req, "item_id")
		if !ok {
			return mcp.NewToolResultError("item_id is required"), nil
		}
		if err := s.store.DeleteItem(ctx, gameID, id); err != nil {
			return toolError("delete item", err), nil
		}
		s.editors.drop(gameID)
		return marshalResult(map[string]any{"ok": true, "game_id": gameID, "item_id": id})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown op: %s", op)), nil
	}
}

func (s *WireflowServer) putItems(ctx context.Context, gameID string, raw any) (*mcp.CallToolResult, error) {
	if raw == nil {
		return mcp.NewToolResultError("items is required"), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid items: %v", err)), nil
	}

	var items []*schema.Item
	var warnings []schema.ValidationIssue
	if s.validator != nil {
		var result *schema.ValidationResult
		result, items = s.validator.ValidateJSON(data)
		if !result.Valid() {
			return marshalError(result.ToError())
		}
		warnings = result.Warnings
	} else if err := json.Unmarshal(data, &items); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid items: %v", err)), nil
	}

	if err := s.store.ReplaceItems(ctx, gameID, items); err != nil {
		return toolError("store items", err), nil
	}
	s.editors.drop(gameID)
	s.logger.Debug("items stored", "game_id", gameID, "items", len(items), "warnings", len(warnings))
	return marshalResult(map[string]any{"game_id": gameID, "items": len(items), "warnings": warnings})
}

// handleDependency reads back or previews one condition.
func (s *WireflowServer) handleDependency(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, err := req.RequireString("game_id")
	if err != nil {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	id, ok := itemIDArg(req, "item_id")
	if !ok {
		return mcp.NewToolResultError("item_id is required"), nil
	}

	return s.withEditor(ctx, gameID, req.GetString("selector", ""), func(e *editor) (*mcp.CallToolResult, error) {
		it := e.manager.Item(id)
		if it == nil {
			return toolError("read dependency", schema.NewErrorf(schema.ErrCodeNotFound, "item %d not found", id)), nil
		}
		dep := e.manager.GetOutputDependency(it)

		if req.GetString("op", "read") != "preview" {
			return marshalResult(map[string]any{
				"item_id":    id,
				"selector":   e.manager.Selector(),
				"dependency": dep,
			})
		}

		ev, err := expressions.NewEvaluatorFor(req.GetString("engine", "cel"))
		if err != nil {
			return toolError("preview", err), nil
		}
		state := expressions.GameState{
			Actions: int64Map(mcp.ParseStringMap(req, "actions", nil)),
			Now:     int64(req.GetFloat("now", 0)),
		}
		preview, err := ev.Evaluate(ctx, dep, state)
		if err != nil {
			return toolError("preview", err), nil
		}
		return marshalResult(map[string]any{
			"item_id":    id,
			"selector":   e.manager.Selector(),
			"dependency": dep,
			"preview":    preview,
		})
	})
}

// handleConnect draws an edge the way a pointer gesture would, or removes it.
func (s *WireflowServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, err := req.RequireString("game_id")
	if err != nil {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	from, okFrom := itemIDArg(req, "from_item")
	to, okTo := itemIDArg(req, "to_item")
	if !okFrom || !okTo {
		return mcp.NewToolResultError("from_item and to_item are required"), nil
	}

	return s.withEditor(ctx, gameID, req.GetString("selector", ""), func(e *editor) (*mcp.CallToolResult, error) {
		if req.GetBool("remove", false) {
			if err := disconnect(e, from, action, to); err != nil {
				return toolError("disconnect", err), nil
			}
		} else if err := connect(e, from, action, to); err != nil {
			return toolError("connect", err), nil
		}
		return s.saveAndReport(ctx, e, to)
	})
}

func connect(e *editor, from int64, action string, to int64) error {
	d := e.diagram()
	in := d.GetInputPortByGeneralItemID(schema.ItemKey(to))
	if in == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %d has no input port", to).WithItem(schema.ItemKey(to))
	}
	out, err := e.manager.AddOutputAction(from, action)
	if err != nil {
		return err
	}
	e.markChanged(from)

	d.OnPress(diagram.PointerEvent{Target: out})
	c := d.OpenedConnector()
	if c == nil {
		return schema.NewError(schema.ErrCodeConflict, "no connector opened")
	}
	c.OnDragEnd(in)
	attached := c.State == diagram.StateAttached
	// A click closes the gesture and discards a connector left dangling.
	d.OnClick(diagram.PointerEvent{})
	if !attached {
		return schema.NewErrorf(schema.ErrCodeConflict, "item %d:%s cannot feed item %d", from, action, to)
	}
	return nil
}

func disconnect(e *editor, from int64, action string, to int64) error {
	d := e.diagram()
	out := d.GetOutputPortByGeneralItemID(schema.ItemKey(from), action)
	if out == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "item %d has no output %q", from, action)
	}
	toKey := schema.ItemKey(to)
	for _, c := range out.Connectors {
		consumer := ""
		if c.InputPort != nil {
			consumer = c.InputPort.GeneralItemID
		} else if mp := d.GetMiddlePointByConnector(c); mp != nil {
			consumer = mp.GeneralItemID
		}
		if consumer == toKey {
			return e.manager.RemoveConnector(c)
		}
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "no edge from %d:%s to %d", from, action, to)
}

// handleCombine wraps or retypes the root of an item's condition.
func (s *WireflowServer) handleCombine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, err := req.RequireString("game_id")
	if err != nil {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	id, ok := itemIDArg(req, "item_id")
	if !ok {
		return mcp.NewToolResultError("item_id is required"), nil
	}
	typeName, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}
	t, err := combinatorType(typeName)
	if err != nil {
		return toolError("combine", err), nil
	}
	delta := int64(req.GetFloat("time_delta", 0))

	return s.withEditor(ctx, gameID, req.GetString("selector", ""), func(e *editor) (*mcp.CallToolResult, error) {
		if err := combine(e, id, t, delta); err != nil {
			return toolError("combine", err), nil
		}
		return s.saveAndReport(ctx, e, id)
	})
}

func combine(e *editor, id int64, t schema.DependencyType, delta int64) error {
	key := schema.ItemKey(id)
	d := e.diagram()
	if mp := d.GetMainMiddlePoint(key); mp != nil {
		if err := e.manager.ChangeMiddlePointType(mp, t); err != nil {
			return err
		}
		if t == schema.DependencyTypeTime {
			return e.manager.SetTimeDelta(mp, delta)
		}
		return nil
	}
	if c := d.GetSingleConnector(key); c != nil {
		_, err := e.manager.ChangeSingleDependency(c, t, delta)
		return err
	}
	return schema.NewErrorf(schema.ErrCodeConflict, "item %d has no drawn condition", id).WithItem(key)
}

// handleRender draws the game's diagram.
func (s *WireflowServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, err := req.RequireString("game_id")
	if err != nil {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}

	return s.withEditor(ctx, gameID, req.GetString("selector", ""), func(e *editor) (*mcp.CallToolResult, error) {
		model := render.Build(e.diagram(), gameID)
		switch format {
		case "ascii":
			return mcp.NewToolResultText(render.RenderASCII(model)), nil
		case "mermaid":
			return mcp.NewToolResultText(render.RenderMermaid(model)), nil
		case "svg":
			return mcp.NewToolResultText(render.RenderSVG(model)), nil
		case "image":
			png, err := render.RenderImage(ctx, model)
			if err != nil {
				return toolError("render image", err), nil
			}
			return mcp.NewToolResultImage(gameID, base64.StdEncoding.EncodeToString(png), "image/png"), nil
		default:
			return mcp.NewToolResultError("format must be ascii, mermaid, svg or image"), nil
		}
	})
}

// handleQuery runs jq over the stored items of a game.
func (s *WireflowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, err := req.RequireString("game_id")
	if err != nil {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	items, err := s.store.ListItems(ctx, gameID)
	if err != nil {
		return toolError("list items", err), nil
	}
	out, err := expressions.NewGoJQEngine().QueryItems(ctx, expression, items)
	if err != nil {
		return toolError("query", err), nil
	}
	return marshalResult(map[string]any{"results": out})
}

// handleHistory lists stored editor events.
func (s *WireflowServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, err := req.RequireString("game_id")
	if err != nil {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	filter := store.EventFilter{
		GameID: gameID,
		Since:  int64(req.GetFloat("since", 0)),
		Limit:  req.GetInt("limit", 100),
	}
	if t := req.GetString("event_type", ""); t != "" {
		filter.Types = []string{t}
	}
	events, err := s.store.GetEvents(ctx, filter)
	if err != nil {
		return toolError("history", err), nil
	}
	return marshalResult(map[string]any{"events": events})
}

// handleWatch subscribes the calling session to a game's events.
func (s *WireflowServer) handleWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	gameID, err := req.RequireString("game_id")
	if err != nil {
		return mcp.NewToolResultError("game_id is required"), nil
	}
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return mcp.NewToolResultError("watch requires a client session"), nil
	}
	s.sessions.Watch(gameID, session.SessionID())
	return marshalResult(map[string]any{"ok": true, "game_id": gameID, "session_id": session.SessionID()})
}

// --- Internal helpers ---

// withEditor runs fn on the game's editor under its lock. A selector other
// than the editor's current one saves pending edits, then redraws.
func (s *WireflowServer) withEditor(ctx context.Context, gameID, selector string, fn func(*editor) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	e, err := s.editors.get(ctx, gameID)
	if err != nil {
		return toolError("open game", err), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if sel := schema.Selector(selector); sel != "" && sel != e.manager.Selector() {
		if _, err := e.save(ctx, s.store); err != nil {
			return toolError("save", err), nil
		}
		e.manager.SetSelector(ctx, sel)
		e.changed = nil
	}
	return fn(e)
}

func (s *WireflowServer) saveAndReport(ctx context.Context, e *editor, id int64) (*mcp.CallToolResult, error) {
	saved, err := e.save(ctx, s.store)
	if err != nil {
		return toolError("save", err), nil
	}
	var dep *schema.Dependency
	if it := e.manager.Item(id); it != nil {
		dep = it.Condition(e.manager.Selector())
	}
	return marshalResult(map[string]any{
		"item_id":    id,
		"selector":   e.manager.Selector(),
		"dependency": dep,
		"saved":      saved,
	})
}

func combinatorType(name string) (schema.DependencyType, error) {
	switch name {
	case "and":
		return schema.DependencyTypeAnd, nil
	case "or":
		return schema.DependencyTypeOr, nil
	case "time":
		return schema.DependencyTypeTime, nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown combinator %q", name)
	}
}

// itemIDArg accepts a JSON number or a numeric string.
func itemIDArg(req mcp.CallToolRequest, key string) (int64, bool) {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		id, err := schema.ParseItemKey(v)
		return id, err == nil
	}
	return 0, false
}

func int64Map(m map[string]any) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		switch n := v.(type) {
		case float64:
			out[k] = int64(n)
		case int:
			out[k] = int64(n)
		case int64:
			out[k] = n
		case string:
			if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
				out[k] = parsed
			}
		}
	}
	return out
}

func toolError(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

// marshalError reports a structured error as the tool result.
func marshalError(err error) (*mcp.CallToolResult, error) {
	data, mErr := json.Marshal(err)
	if mErr != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = true
	return res, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
