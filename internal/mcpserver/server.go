// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Pantry tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pantry/internal/apperr"
	"github.com/starford/pantry/internal/assistant"
	"github.com/starford/pantry/internal/inventory"
	"github.com/starford/pantry/internal/models"
)

const conventionsURI = "pantry://conventions"

// Server wraps the MCP server with Pantry tools.
type Server struct {
	mcp       *server.MCPServer
	store     *inventory.Store
	assistant *assistant.Client
	logger    *slog.Logger
}

// New creates a new MCP server with all Pantry tools registered. ai may be
// nil, in which case the assistant tools report an error.
func New(store *inventory.Store, ai *assistant.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{store: store, assistant: ai, logger: logger}

	s.mcp = server.NewMCPServer(
		"Pantry",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_ingredients",
		mcp.WithDescription("List everything currently in the fridge with quantities and units."),
	), s.listIngredients)

	s.mcp.AddTool(mcp.NewTool("add_ingredient",
		mcp.WithDescription("Add a stock record. Read the conventions resource for categories and units."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Ingredient name, e.g. 葱")),
		mcp.WithNumber("quantity", mcp.Required(), mcp.Description("Positive amount")),
		mcp.WithString("unit", mcp.Description("Unit, e.g. 根 or g")),
		mcp.WithString("type", mcp.Description("Category: 蔬菜, 肉类, 调料 or 其他")),
	), s.addIngredient)

	s.mcp.AddTool(mcp.NewTool("list_dishes",
		mcp.WithDescription("List built-in and custom dishes with their required ingredients."),
		mcp.WithBoolean("feasible_only", mcp.Description("Only dishes that can be cooked from current stock")),
	), s.listDishes)

	s.mcp.AddTool(mcp.NewTool("missing_ingredients",
		mcp.WithDescription("Report what is short for cooking a dish."),
		mcp.WithString("dish", mcp.Required(), mcp.Description("Dish name")),
	), s.missingIngredients)

	s.mcp.AddTool(mcp.NewTool("cook_dish",
		mcp.WithDescription("Cook a dish: deduct all its ingredients from stock and log it for today. "+
			"Nothing changes unless confirm is true."),
		mcp.WithString("dish", mcp.Required(), mcp.Description("Dish name")),
		mcp.WithBoolean("confirm", mcp.Description("Must be true to apply the deduction")),
	), s.cookDish)

	s.mcp.AddTool(mcp.NewTool("plan_dish",
		mcp.WithDescription("Put a dish on the menu of a day."),
		mcp.WithString("dish", mcp.Required(), mcp.Description("Dish name")),
		mcp.WithString("date", mcp.Description("Day key (2006-01-02) or a phrase like tomorrow; default today")),
	), s.planDish)

	s.mcp.AddTool(mcp.NewTool("day_plan",
		mcp.WithDescription("Show the menu of a day with the status of each planned dish."),
		mcp.WithString("date", mcp.Description("Day key or phrase; default today")),
	), s.dayPlan)

	s.mcp.AddTool(mcp.NewTool("suggest_recipes",
		mcp.WithDescription("Ask the cooking assistant for seasonal recipe ideas based on current stock."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("What the user wants to eat")),
	), s.suggestRecipes)

	s.mcp.AddTool(mcp.NewTool("recognize_photo",
		mcp.WithDescription("Recognise ingredients in a fridge photo and add them to stock."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or base64 data URI of the image")),
	), s.recognizePhoto)

	s.mcp.AddResource(
		mcp.NewResource(conventionsURI, "Pantry Conventions",
			mcp.WithResourceDescription("How stock records, dishes and day keys are matched and validated."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventions,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	var short *inventory.InsufficientError
	if errors.As(err, &short) {
		return mcp.NewToolResultError(fmt.Sprintf("cannot cook %s, missing: %s", short.Dish, formatMissing(short.Missing)))
	}
	if errors.Is(err, apperr.ErrAborted) {
		return mcp.NewToolResultError("not applied: pass confirm=true to proceed")
	}
	return mcp.NewToolResultError(err.Error())
}

func formatMissing(missing []models.MissingIngredient) string {
	parts := make([]string, len(missing))
	for i, m := range missing {
		parts[i] = fmt.Sprintf("%s %g%s", m.Name, m.Needed, m.Unit)
	}
	return strings.Join(parts, ", ")
}

func (s *Server) listIngredients(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stock := s.store.Ingredients()
	if len(stock) == 0 {
		return mcp.NewToolResultText("the fridge is empty"), nil
	}
	return jsonResult(stock), nil
}

func (s *Server) addIngredient(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	qty, err := req.RequireFloat("quantity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ing, err := s.store.AddIngredient(inventory.IngredientInput{
		Name:     name,
		Quantity: qty,
		Unit:     req.GetString("unit", ""),
		Type:     models.IngredientType(req.GetString("type", "")),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(ing), nil
}

type dishSummary struct {
	Name        string                      `json:"name"`
	Builtin     bool                        `json:"builtin"`
	CanMake     bool                        `json:"canMake"`
	Ingredients []models.RequiredIngredient `json:"ingredients"`
}

func (s *Server) listDishes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	onlyFeasible := req.GetBool("feasible_only", false)
	stock := s.store.Ingredients()
	out := []dishSummary{}
	for _, d := range s.store.Dishes() {
		can := inventory.CanMakeDish(stock, d)
		if onlyFeasible && !can {
			continue
		}
		out = append(out, dishSummary{Name: d.Name, Builtin: s.store.IsBuiltin(d.ID), CanMake: can, Ingredients: d.Ingredients})
	}
	return jsonResult(out), nil
}

func (s *Server) missingIngredients(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dish, err := req.RequireString("dish")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	missing, err := s.store.Missing(dish)
	if err != nil {
		return errorResult(err), nil
	}
	if len(missing) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("nothing missing, %s can be cooked", dish)), nil
	}
	return mcp.NewToolResultText("missing: " + formatMissing(missing)), nil
}

func (s *Server) cookDish(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dish, err := req.RequireString("dish")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	yes := req.GetBool("confirm", false)
	if err := s.store.CookDish(dish, func(string) bool { return yes }); err != nil {
		return errorResult(err), nil
	}
	s.logger.Info("mcp: dish cooked", slog.String("dish", dish))
	return mcp.NewToolResultText(fmt.Sprintf("cooked: %s", dish)), nil
}

func (s *Server) planDish(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dish, err := req.RequireString("dish")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := s.store.ResolveDate(req.GetString("date", ""))
	if err != nil {
		return errorResult(err), nil
	}
	if err := s.store.QuickAddDish(key, dish); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("planned %s on %s", dish, key)), nil
}

func (s *Server) dayPlan(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := s.store.ResolveDate(req.GetString("date", ""))
	if err != nil {
		return errorResult(err), nil
	}
	plan, err := s.store.DayPlan(key)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(plan), nil
}

func (s *Server) suggestRecipes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.assistant == nil {
		return errorResult(assistant.ErrNotConfigured), nil
	}
	reply, err := s.assistant.Chat(ctx, prompt, s.store.Ingredients())
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(reply), nil
}

func (s *Server) readConventions(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      conventionsURI,
			MIMEType: "text/markdown",
			Text:     Conventions,
		},
	}, nil
}
